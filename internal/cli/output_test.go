package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queueCounts struct {
	QueueURL string `json:"queueUrl"`
	Visible  int    `json:"approximateNumberOfMessages"`
}

func TestPrint_Formats(t *testing.T) {
	v := queueCounts{QueueURL: "http://localhost:4566/000000000000/messages", Visible: 3}

	var js bytes.Buffer
	require.NoError(t, (&rootOptions{output: outputJSON}).print(&js, v))
	assert.JSONEq(t, `{"queueUrl":"http://localhost:4566/000000000000/messages","approximateNumberOfMessages":3}`, js.String())

	var ym bytes.Buffer
	require.NoError(t, (&rootOptions{output: outputYAML}).print(&ym, v))
	assert.Contains(t, ym.String(), "queueUrl: http://localhost:4566/000000000000/messages\n")
	assert.Contains(t, ym.String(), "approximateNumberOfMessages: 3\n")

	assert.Error(t, (&rootOptions{output: "xml"}).print(&bytes.Buffer{}, v))
}
