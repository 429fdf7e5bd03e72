package nats_test

import (
	"context"
	"errors"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/next-trace/scg-message-publisher/adapters/nats"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
)

type fakeSub struct {
	msgs         []*natsgo.Msg
	err          error
	unsubscribed bool
}

func (f *fakeSub) NextMsgWithContext(ctx context.Context) (*natsgo.Msg, error) {
	if f.err != nil {
		return nil, f.err
	}

	if len(f.msgs) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	m := f.msgs[0]
	f.msgs = f.msgs[1:]

	return m, nil
}

func (f *fakeSub) Pending() (int, int, error) { return len(f.msgs), 0, nil }

func (f *fakeSub) Unsubscribe() error { f.unsubscribed = true; return nil }

func msg(id string) *natsgo.Msg {
	h := natsgo.Header{}
	h.Set("message-id", id)
	h.Set("message-type", "sns-only")

	return &natsgo.Msg{Subject: "messages", Data: []byte("content " + id), Header: h}
}

func openSource(t *testing.T, sub *fakeSub, batch int) *nats.Source {
	t.Helper()

	s := nats.NewSourceWith(batch, 20*time.Millisecond, func(context.Context) (nats.Subscription, func(), error) {
		return sub, nil, nil
	})
	if err := s.Open(t.Context()); err != nil {
		t.Fatalf("open: %v", err)
	}

	return s
}

func TestSource_PollDrainsUpToBatch(t *testing.T) {
	sub := &fakeSub{msgs: []*natsgo.Msg{msg("a"), msg("b"), msg("c")}}
	s := openSource(t, sub, 2)

	ds, err := s.Poll(t.Context())
	if err != nil || len(ds) != 2 {
		t.Fatalf("poll: %v %d", err, len(ds))
	}

	e, err := ds[1].Envelope()
	if err != nil || e.ID != "b" || e.Content != "content b" {
		t.Fatalf("envelope: %v %+v", err, e)
	}

	if ds[0].Ack != nil {
		t.Fatalf("core nats deliveries carry no ack")
	}

	ds, _ = s.Poll(t.Context())
	if len(ds) != 1 || ds[0].ID != "c" {
		t.Fatalf("second poll: %+v", ds)
	}
}

func TestSource_PollTimeoutIsEmpty(t *testing.T) {
	s := openSource(t, &fakeSub{}, 5)

	ds, err := s.Poll(t.Context())
	if err != nil || len(ds) != 0 {
		t.Fatalf("poll: %v %v", err, ds)
	}
}

func TestSource_PollCanceled(t *testing.T) {
	s := openSource(t, &fakeSub{}, 5)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := s.Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestSource_PollError(t *testing.T) {
	s := openSource(t, &fakeSub{err: natsgo.ErrConnectionClosed}, 5)

	if _, err := s.Poll(t.Context()); !errors.Is(err, berr.ErrReceiveFailed) {
		t.Fatalf("want ErrReceiveFailed, got %v", err)
	}
}

func TestSource_CloseUnsubscribes(t *testing.T) {
	sub := &fakeSub{}
	s := openSource(t, sub, 1)

	if err := s.Close(); err != nil || !sub.unsubscribed {
		t.Fatalf("close: %v", err)
	}
}

func TestNewSource_RequiresURL(t *testing.T) {
	if _, err := nats.NewSource(nats.Config{}, 1, time.Second); !errors.Is(err, berr.ErrConfiguration) {
		t.Fatalf("want ErrConfiguration, got %v", err)
	}
}
