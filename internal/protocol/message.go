package protocol

import (
	"encoding/json"
)

// Message types.
const (
	TypeResolve = "resolve"
	TypeNotify  = "notify"
	TypeSend    = "send"
)

// Message is one protocol action carried in a single frame.
//
// Wire format for send:
//
//	{
//	  "type": "send",
//	  "to": "",
//	  "from": "01J0Z3N6Q8W5M9B8R7T6Y5X4V3",
//	  "op": "post",
//	  "args": ["ping", [41]]
//	}
//
// Wire format for resolve and notify:
//
//	{
//	  "type": "resolve",
//	  "to": "01J0Z3N6Q8W5M9B8R7T6Y5X4V3",
//	  "resolution": 42
//	}
//
// Args and Resolution hold QSON-encoded values.
type Message struct {
	// Type is one of "resolve", "notify" or "send"
	Type string `json:"type"`

	// To identifies the local entry on the receiving side; "" is the root
	To string `json:"to"`

	// From identifies the sender's response entry (send only)
	From string `json:"from,omitempty"`

	// Op names the operation to perform (send only)
	Op string `json:"op,omitempty"`

	// Args holds the encoded operation arguments (send only)
	Args json.RawMessage `json:"args,omitempty"`

	// Resolution holds the encoded value or progress (resolve and notify)
	Resolution json.RawMessage `json:"resolution,omitempty"`
}
