package publish

import "encoding/json"

// Receipt is the acknowledgement a destination returns for one accepted envelope.
// Attributes are destination specific (topic/partition/offset, topicArn, queueUrl...).
type Receipt struct {
	Destination string
	MessageID   string
	Timestamp   string
	Attributes  map[string]any
}

// MarshalJSON renders the receipt flat: success, messageId and timestamp next to the attributes.
func (r Receipt) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Attributes)+3)
	for k, v := range r.Attributes {
		m[k] = v
	}

	m["success"] = true
	m["messageId"] = r.MessageID
	m["timestamp"] = r.Timestamp

	return json.Marshal(m)
}
