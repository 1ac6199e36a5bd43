package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hwkim3330/webxr/domain"
)

type MessageType string

const (
	TypeJoin         MessageType = "join"
	TypeOffer        MessageType = "offer"
	TypeAnswer       MessageType = "answer"
	TypeICECandidate MessageType = "ice-candidate"

	TypeCreateOffer MessageType = "create-offer"
	TypeSenderReady MessageType = "sender-ready"
	TypeSenderLeft  MessageType = "sender-left"
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
)

// Inbound is one decoded client message: *Join, *Offer, *Answer or
// *ICECandidate. Nothing outside this file can add variants.
type Inbound interface {
	Type() MessageType
	inbound()
}

type Join struct {
	// Room is empty when the client omitted it.
	Room string
	Role domain.Role
}

type Offer struct {
	Offer json.RawMessage
}

type Answer struct {
	Answer json.RawMessage
}

type ICECandidate struct {
	Candidate json.RawMessage
}

func (*Join) Type() MessageType         { return TypeJoin }
func (*Offer) Type() MessageType        { return TypeOffer }
func (*Answer) Type() MessageType       { return TypeAnswer }
func (*ICECandidate) Type() MessageType { return TypeICECandidate }

func (*Join) inbound()         {}
func (*Offer) inbound()        {}
func (*Answer) inbound()       {}
func (*ICECandidate) inbound() {}

// Decode classifies a text frame. Field names are matched exactly. Errors
// wrap ErrMalformed or ErrUnknownType.
func Decode(data []byte) (Inbound, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	typ, err := stringField(fields, "type")
	if err != nil {
		return nil, err
	}

	switch MessageType(typ) {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	case TypeJoin:
		room, err := stringField(fields, "room")
		if err != nil {
			return nil, err
		}
		clientType, err := stringField(fields, "clientType")
		if err != nil {
			return nil, err
		}
		role := domain.Role(clientType)
		if !role.Valid() {
			return nil, fmt.Errorf("%w: join with clientType %q", ErrMalformed, clientType)
		}
		return &Join{Room: room, Role: role}, nil
	case TypeOffer:
		if !isObject(fields["offer"]) {
			return nil, fmt.Errorf("%w: offer must be an object", ErrMalformed)
		}
		return &Offer{Offer: fields["offer"]}, nil
	case TypeAnswer:
		if !isObject(fields["answer"]) {
			return nil, fmt.Errorf("%w: answer must be an object", ErrMalformed)
		}
		return &Answer{Answer: fields["answer"]}, nil
	case TypeICECandidate:
		if !isObject(fields["candidate"]) {
			return nil, fmt.Errorf("%w: candidate must be an object", ErrMalformed)
		}
		return &ICECandidate{Candidate: fields["candidate"]}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, typ)
	}
}

// stringField returns "" for an absent or null key.
func stringField(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", nil
	}
	var v *string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrMalformed, key)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// Outbound is a coordinator-to-client frame.
type Outbound struct {
	Type      MessageType     `json:"type"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

func (o Outbound) Encode() ([]byte, error) {
	return json.Marshal(o)
}

var (
	createOfferFrame = mustEncode(Outbound{Type: TypeCreateOffer})
	senderReadyFrame = mustEncode(Outbound{Type: TypeSenderReady})
	senderLeftFrame  = mustEncode(Outbound{Type: TypeSenderLeft})
)

func mustEncode(o Outbound) []byte {
	b, err := o.Encode()
	if err != nil {
		panic(err)
	}
	return b
}

// relayFrame re-wraps an inbound negotiation message for its targets. The
// payload is spliced in as received, without re-encoding.
func relayFrame(msg Inbound) ([]byte, error) {
	switch m := msg.(type) {
	case *Offer:
		return wrapPayload(TypeOffer, "offer", m.Offer), nil
	case *Answer:
		return wrapPayload(TypeAnswer, "answer", m.Answer), nil
	case *ICECandidate:
		return wrapPayload(TypeICECandidate, "candidate", m.Candidate), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, msg.Type())
	}
}

func wrapPayload(typ MessageType, key string, payload json.RawMessage) []byte {
	var b bytes.Buffer
	b.Grow(len(payload) + len(typ) + len(key) + 16)
	b.WriteString(`{"type":"`)
	b.WriteString(string(typ))
	b.WriteString(`","`)
	b.WriteString(key)
	b.WriteString(`":`)
	b.Write(payload)
	b.WriteByte('}')
	return b.Bytes()
}
