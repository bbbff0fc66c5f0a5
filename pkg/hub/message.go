// Package hub fans dashboard stream messages out to websocket clients over
// channels.
package hub

import "encoding/json"

// Message is one encoded stream message. Kind names the payload ("status",
// "event") for logs; Data is the JSON text frame sent to clients.
type Message struct {
	Kind string
	Data []byte
}

// Encode marshals v into a Message of the given kind.
func Encode(kind string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: kind, Data: data}, nil
}
