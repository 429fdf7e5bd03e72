package gateway

import (
	"errors"
	"fmt"

	"github.com/next-trace/scg-message-publisher/contract/envelope"
	berr "github.com/next-trace/scg-message-publisher/contract/errors"
	"github.com/next-trace/scg-message-publisher/contract/publish"
)

// Route names a publish endpoint. Each route fixes the envelope type and the
// set of destinations it reaches.
type Route string

const (
	RouteKafkaSNS Route = "kafka-sns"
	RouteSNSSQS   Route = "sns-sqs"
	RouteKafka    Route = "kafka"
	RouteSNS      Route = "sns"
	RouteSQS      Route = "sqs"
)

type routeDef struct {
	typ   envelope.Type
	dests []string
}

var routeTable = map[Route]routeDef{
	RouteKafkaSNS: {typ: envelope.TypeKafkaSNS, dests: []string{publish.Kafka, publish.SNS}},
	RouteSNSSQS:   {typ: envelope.TypeSNSSQS, dests: []string{publish.SNS, publish.SQS}},
	RouteKafka:    {typ: envelope.TypeKafkaOnly, dests: []string{publish.Kafka}},
	RouteSNS:      {typ: envelope.TypeSNSOnly, dests: []string{publish.SNS}},
	RouteSQS:      {typ: envelope.TypeSQSOnly, dests: []string{publish.SQS}},
}

// Routes lists every route, dual routes first.
func Routes() []Route {
	return []Route{RouteKafkaSNS, RouteSNSSQS, RouteKafka, RouteSNS, RouteSQS}
}

// ParseRoute maps s onto a known route. Unknown routes match both
// ErrUnknownRoute and ErrValidation.
func ParseRoute(s string) (Route, error) {
	r := Route(s)
	if _, ok := routeTable[r]; !ok {
		return "", fmt.Errorf("route %q: %w", s, errors.Join(berr.ErrUnknownRoute, berr.ErrValidation))
	}

	return r, nil
}

// Type is the envelope type stamped on messages sent through r.
func (r Route) Type() envelope.Type { return routeTable[r].typ }

// Destinations returns the destination names r fans out to.
func (r Route) Destinations() []string {
	return append([]string(nil), routeTable[r].dests...)
}

// Dual reports whether r reaches two destinations.
func (r Route) Dual() bool { return len(routeTable[r].dests) > 1 }

func (r Route) String() string { return string(r) }
