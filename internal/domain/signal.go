package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Action is the signaling message kind.
type Action string

const (
	ActionSDPOffer       Action = "SDP_OFFER"
	ActionSDPAnswer      Action = "SDP_ANSWER"
	ActionICECandidate   Action = "ICE_CANDIDATE"
	ActionStatusResponse Action = "STATUS_RESPONSE"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionSDPOffer, ActionSDPAnswer, ActionICECandidate, ActionStatusResponse:
		return true
	}
	return false
}

// Message is a decoded signaling message. Payload is the base64url
// (unpadded) encoding of an action-specific JSON object.
type Message struct {
	Action            Action
	SenderClientID    string
	RecipientClientID string
	Payload           string
	Status            *StatusResponse
}

// StatusResponse is reported by the signaling service when it rejects a message.
type StatusResponse struct {
	CorrelationID string `json:"correlationId"`
	ErrorType     string `json:"errorType"`
	StatusCode    string `json:"statusCode"`
	Description   string `json:"description"`
}

// SDPPayload is the JSON structure for SDP offer/answer messages.
type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidatePayload is the JSON structure for ICE candidate messages.
type ICECandidatePayload struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
}

// EncodePayload marshals v and encodes it as base64url without padding.
func EncodePayload(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodePayload decodes a base64 payload into v. Both the URL and standard
// alphabets are accepted, padded or not.
func DecodePayload(payload string, v any) error {
	s := strings.TrimRight(payload, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}

// NewSDPMessage builds an SDP_OFFER or SDP_ANSWER message for d.
func NewSDPMessage(d Description, sender, recipient string) (Message, error) {
	var action Action
	switch d.Type {
	case SDPTypeOffer:
		action = ActionSDPOffer
	case SDPTypeAnswer:
		action = ActionSDPAnswer
	default:
		return Message{}, fmt.Errorf("unsupported sdp type %q", d.Type)
	}
	payload, err := EncodePayload(SDPPayload{Type: string(d.Type), SDP: d.SDP})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Action:            action,
		SenderClientID:    sender,
		RecipientClientID: recipient,
		Payload:           payload,
	}, nil
}

// NewCandidateMessage builds an ICE_CANDIDATE message for c.
func NewCandidateMessage(c Candidate, sender, recipient string) (Message, error) {
	payload, err := EncodePayload(ICECandidatePayload(c))
	if err != nil {
		return Message{}, err
	}
	return Message{
		Action:            ActionICECandidate,
		SenderClientID:    sender,
		RecipientClientID: recipient,
		Payload:           payload,
	}, nil
}

// Description decodes an SDP message payload.
func (m Message) Description() (Description, error) {
	var p SDPPayload
	if err := DecodePayload(m.Payload, &p); err != nil {
		return Description{}, err
	}
	t := SDPType(p.Type)
	if t == "" {
		// the service omits the type on some relayed offers
		if m.Action == ActionSDPOffer {
			t = SDPTypeOffer
		} else {
			t = SDPTypeAnswer
		}
	}
	return Description{Type: t, SDP: p.SDP}, nil
}

// Candidate decodes an ICE_CANDIDATE payload.
func (m Message) Candidate() (Candidate, error) {
	var p ICECandidatePayload
	if err := DecodePayload(m.Payload, &p); err != nil {
		return Candidate{}, err
	}
	if p.Candidate == "" {
		return Candidate{}, fmt.Errorf("empty candidate")
	}
	return Candidate(p), nil
}

// SDPType is the session description kind.
type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// Description is a session description independent of the media engine.
type Description struct {
	Type SDPType
	SDP  string
}

// Candidate is an ICE candidate independent of the media engine.
type Candidate struct {
	Candidate     string
	SDPMid        string
	SDPMLineIndex int
}
