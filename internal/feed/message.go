// message.go - Envelope for everything pushed to feed subscribers.

package feed

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"shieldedpool/internal/merkle"
)

// Message types.
const (
	TypeRoot  = "root"
	TypeHello = "hello"
)

// Message is the generic envelope. Payload is decoded according to Type.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Source  string          `json:"source"`
	Time    time.Time       `json:"time"`
}

// RootUpdate announces a root produced by a deposit.
type RootUpdate struct {
	Root       merkle.Hash `json:"root"`
	LeafIndex  uint64      `json:"leaf_index"`
	LeafCount  uint64      `json:"leaf_count"`
	Commitment merkle.Hash `json:"commitment"`
}

// Hello is sent to every new subscriber with the current pool head.
type Hello struct {
	Root      merkle.Hash `json:"root"`
	LeafCount uint64      `json:"leaf_count"`
}

// NewMessage wraps payload in an envelope.
func NewMessage(typ, source string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s payload", typ)
	}
	return &Message{Type: typ, Payload: raw, Source: source, Time: time.Now().UTC()}, nil
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	return errors.Wrapf(json.Unmarshal(m.Payload, v), "decode %s payload", m.Type)
}
