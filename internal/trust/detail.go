package trust

import (
	"encoding/json"
	"fmt"
)

// Detail is the typed payload attached to an audit log entry. Each action
// kind has its own variant; unknown payloads decode into RawDetail so old
// rows keep round-tripping after the set grows.
type Detail interface {
	// Kind returns the discriminator written alongside the payload.
	Kind() string
	// Reason returns the human-entered justification. Every variant carries one.
	Reason() string
}

// ModerationDetail records a warn/suspend/ban.
type ModerationDetail struct {
	Severity      Severity `json:"severity"`
	DurationHours *int     `json:"duration_hours,omitempty"`
	Note          string   `json:"reason"`
	WarningID     string   `json:"warning_id,omitempty"`
}

func (ModerationDetail) Kind() string     { return "moderation" }
func (d ModerationDetail) Reason() string { return d.Note }

// TakedownDetail records a content delete or restore.
type TakedownDetail struct {
	Note    string `json:"reason"`
	OwnerID string `json:"owner_id,omitempty"`
	// Redelete marks a delete issued against content that was already
	// soft-deleted (a re-confirmed decision).
	Redelete bool `json:"redelete,omitempty"`
}

func (TakedownDetail) Kind() string     { return "takedown" }
func (d TakedownDetail) Reason() string { return d.Note }

// ClearDetail records a lift-restrictions action.
type ClearDetail struct {
	Note           string `json:"reason"`
	PreviousStatus Status `json:"previous_status,omitempty"`
}

func (ClearDetail) Kind() string     { return "clear" }
func (d ClearDetail) Reason() string { return d.Note }

// RawDetail preserves payloads whose kind this build does not know.
type RawDetail struct {
	RawKind string          `json:"-"`
	Payload json.RawMessage `json:"-"`
}

func (d RawDetail) Kind() string { return d.RawKind }

func (d RawDetail) Reason() string {
	var probe struct {
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(d.Payload, &probe)
	return probe.Reason
}

// detailEnvelope is the wire form: a kind discriminator plus the variant body.
type detailEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeDetail serializes a detail for storage.
func EncodeDetail(d Detail) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("encode detail: nil detail")
	}
	var payload []byte
	var err error
	if raw, ok := d.(RawDetail); ok {
		payload = raw.Payload
	} else {
		payload, err = json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode detail: %w", err)
		}
	}
	return json.Marshal(detailEnvelope{Kind: d.Kind(), Payload: payload})
}

// DecodeDetail deserializes a stored detail, falling back to RawDetail for
// unknown kinds.
func DecodeDetail(data []byte) (Detail, error) {
	var env detailEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode detail: %w", err)
	}
	switch env.Kind {
	case "moderation":
		var d ModerationDetail
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			return nil, fmt.Errorf("decode moderation detail: %w", err)
		}
		return d, nil
	case "takedown":
		var d TakedownDetail
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			return nil, fmt.Errorf("decode takedown detail: %w", err)
		}
		return d, nil
	case "clear":
		var d ClearDetail
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			return nil, fmt.Errorf("decode clear detail: %w", err)
		}
		return d, nil
	default:
		return RawDetail{RawKind: env.Kind, Payload: env.Payload}, nil
	}
}
