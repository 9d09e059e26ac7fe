package dictate

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDecodeEnvelope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, env Envelope)
	}{
		{
			name: "full",
			raw:  `{"type":"transcript","id":"i","corr":"c","data":{"text":"hi"}}`,
			check: func(t *testing.T, env Envelope) {
				if env.Type != TypeTranscript || *env.ID != "i" || *env.Corr != "c" {
					t.Errorf("env = %+v", env)
				}
			},
		},
		{
			name: "explicit nulls",
			raw:  `{"type":"ping","id":null,"corr":null}`,
			check: func(t *testing.T, env Envelope) {
				if env.ID != nil || env.Corr != nil {
					t.Errorf("id/corr = %v/%v, want nil", env.ID, env.Corr)
				}
			},
		},
		{name: "not json", raw: `hello`, wantErr: true},
		{name: "not an object", raw: `"ping"`, wantErr: true},
		{name: "array", raw: `[{"type":"ping"}]`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
		{
			name: "missing type keeps corr",
			raw:  `{"corr":"m"}`,
			check: func(t *testing.T, env Envelope) {
				if env.Type != "" || env.Corr == nil || *env.Corr != "m" {
					t.Errorf("env = %+v", env)
				}
				if got := env.typeLabel(); got != "null" {
					t.Errorf("typeLabel = %q, want null", got)
				}
			},
		},
		{
			name: "numeric type",
			raw:  `{"type":7,"corr":"y"}`,
			check: func(t *testing.T, env Envelope) {
				if env.Type != "" || env.Corr == nil || *env.Corr != "y" {
					t.Errorf("env = %+v", env)
				}
				if got := env.typeLabel(); got != "7" {
					t.Errorf("typeLabel = %q, want 7", got)
				}
			},
		},
		{
			name: "numeric id is ignored",
			raw:  `{"type":"ping","id":1,"corr":"x"}`,
			check: func(t *testing.T, env Envelope) {
				if env.Type != TypePing || env.ID != nil || env.Corr == nil || *env.Corr != "x" {
					t.Errorf("env = %+v", env)
				}
			},
		},
		{
			name: "numeric corr decodes as nil",
			raw:  `{"type":"ping","corr":7}`,
			check: func(t *testing.T, env Envelope) {
				if env.Type != TypePing || env.Corr != nil {
					t.Errorf("env = %+v", env)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env, err := DecodeEnvelope([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, env)
			}
		})
	}
}

func TestEnvelope_DecodeData(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`{"type":"transcript"}`, `{"type":"transcript","data":null}`} {
		env, err := DecodeEnvelope([]byte(raw))
		if err != nil {
			t.Fatalf("DecodeEnvelope(%s): %v", raw, err)
		}
		var d TranscriptData
		if err := env.decodeData(&d); err != nil {
			t.Errorf("decodeData(%s): %v", raw, err)
		}
		if d.Sender != nil || d.Text != nil {
			t.Errorf("decodeData(%s) = %+v, want zero", raw, d)
		}
	}

	env, _ := DecodeEnvelope([]byte(`{"type":"transcript","data":"oops"}`))
	var d TranscriptData
	if err := env.decodeData(&d); err == nil || !strings.Contains(err.Error(), "transcript") {
		t.Errorf("decodeData on string payload: err = %v", err)
	}
}

func TestNewEnvelope_WireShape(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	env, err := newEnvelope(TypeTranscript, map[string]string{"text": "x"}, nil, nil, now)
	if err != nil {
		t.Fatalf("newEnvelope: %v", err)
	}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"transcript","id":null,"corr":null,"ts":"2026-03-01T12:00:00.0000005Z","data":{"text":"x"}}`
	if string(b) != want {
		t.Errorf("wire = %s\nwant   %s", b, want)
	}
}

func TestErrorEnvelope(t *testing.T) {
	t.Parallel()

	corr := "k"
	env := errorEnvelope(CodeUnknownMessageType, "Unknown message type: x", &corr, time.Now())
	if env.Type != TypeError || env.Corr != &corr {
		t.Fatalf("env = %+v", env)
	}
	var d ErrorData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if d.Code != CodeUnknownMessageType || d.Message != "Unknown message type: x" {
		t.Errorf("data = %+v", d)
	}
}
