package dictate

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types carried on the dictation channel.
const (
	TypeTranscript = "transcript"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeError      = "error"
	TypeAudio      = "audio"
)

// Error codes sent in the data of an [TypeError] envelope.
const (
	CodeInvalidJSON         = "INVALID_JSON"
	CodeUnknownMessageType  = "UNKNOWN_MESSAGE_TYPE"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeInvalidAudio        = "INVALID_AUDIO"
	CodeTranscriptionFailed = "TRANSCRIPTION_FAILED"
)

// Envelope is the wire unit of the dictation channel in both directions.
//
// ID and Corr are opaque client tokens. They marshal as null when nil so
// clients always see the same set of keys. TS is empty on inbound envelopes.
type Envelope struct {
	Type string          `json:"type"`
	ID   *string         `json:"id"`
	Corr *string         `json:"corr"`
	TS   string          `json:"ts,omitempty"`
	Data json.RawMessage `json:"data"`

	rawType string // non-string type token as sent, inbound only
}

// ErrorData is the payload of an error envelope.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TranscriptData is the inbound payload of a transcript envelope. Both
// fields are optional.
type TranscriptData struct {
	Sender *string `json:"sender"`
	Text   *string `json:"text"`
}

// AudioData is the inbound payload of an audio envelope.
type AudioData struct {
	AudioData string `json:"audio_data"`
}

// pongData is the fixed payload of every pong.
var pongData = json.RawMessage(`{"status":"alive"}`)

// DecodeEnvelope parses one inbound frame. Only a frame that is not a JSON
// object is an error. The remaining fields are read leniently: a non-string
// id or corr decodes as nil, and a missing or non-string type leaves Type
// empty so the frame is answered as an unknown message type with its corr
// intact.
func DecodeEnvelope(b []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return Envelope{}, err
	}
	if fields == nil {
		return Envelope{}, fmt.Errorf("expected a JSON object, got null")
	}
	env := Envelope{
		ID:   optString(fields["id"]),
		Corr: optString(fields["corr"]),
		Data: fields["data"],
	}
	raw, ok := fields["type"]
	switch t := optString(raw); {
	case t != nil:
		env.Type = *t
	case ok:
		env.rawType = string(raw)
	default:
		env.rawType = "null"
	}
	return env, nil
}

// optString returns raw as a string when it holds a JSON string, else nil.
// Explicit null is nil too.
func optString(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

// typeLabel names the message type for error messages, including types
// that were missing or sent as something other than a string.
func (e Envelope) typeLabel() string {
	if e.rawType != "" {
		return e.rawType
	}
	return e.Type
}

// decodeData unmarshals the envelope payload into v. An absent or null
// payload leaves v untouched.
func (e Envelope) decodeData(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("dictate: decode %s data: %w", e.Type, err)
	}
	return nil
}

// newEnvelope builds an outbound envelope stamped with now.
func newEnvelope(msgType string, data any, id, corr *string, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("dictate: encode %s data: %w", msgType, err)
	}
	return Envelope{
		Type: msgType,
		ID:   id,
		Corr: corr,
		TS:   now.Format(time.RFC3339Nano),
		Data: raw,
	}, nil
}

// errorEnvelope builds an error envelope. It cannot fail since ErrorData
// always marshals.
func errorEnvelope(code, message string, corr *string, now time.Time) Envelope {
	env, _ := newEnvelope(TypeError, ErrorData{Code: code, Message: message}, nil, corr, now)
	return env
}
