// Package dictate implements the websocket dictation channel.
//
// Each connection runs one receive loop. Transcript envelopes are stored in
// the shared [transcript.Log] and echoed straight back; when the sender is
// the human identity a detached goroutine asks the agent for a reply and
// sends it later under the same corr token. The loop never waits for the
// agent, so replies may interleave with echoes of later utterances.
//
// Protocol errors are reported as error envelopes and never close the
// connection. Only a transport-level disconnect ends the loop.
package dictate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/murmur/internal/agent"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/transcript"
	"github.com/MrWong99/murmur/pkg/provider/stt"
)

const (
	// DefaultHumanIdentity marks an utterance as authored by the end user.
	DefaultHumanIdentity = "User"

	// DefaultAgentIdentity is the sender of every agent reply.
	DefaultAgentIdentity = "Dictate"

	// defaultReadLimit leaves room for base64 audio clips.
	defaultReadLimit = 16 << 20
)

// Agent answers one user utterance. The agent service satisfies it.
type Agent interface {
	ProcessText(text string) string
}

// Handler serves the dictation websocket. It is safe for concurrent use by
// any number of connections.
type Handler struct {
	agent     Agent
	log       *transcript.Log
	stt       stt.Transcriber
	corrector atomic.Pointer[transcript.Corrector]
	metrics   *observe.Metrics

	human     string
	agentName string
	origins   []string
	readLimit int64
	now       func() time.Time
	newID     func() string

	// ctx is cancelled by Shutdown and closes every open connection.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a [Handler].
type Option func(*Handler)

// WithIdentities overrides the human and agent sender labels.
func WithIdentities(human, agentName string) Option {
	return func(h *Handler) {
		h.human = human
		h.agentName = agentName
	}
}

// WithTranscriber enables the audio message type. c may be nil to skip
// vocabulary correction.
func WithTranscriber(t stt.Transcriber, c *transcript.Corrector) Option {
	return func(h *Handler) {
		h.stt = t
		h.corrector.Store(c)
	}
}

// WithMetrics records envelope counts, connection gauges and STT latency.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithAllowedOrigins restricts the Origin header of upgrade requests. An
// empty list accepts any origin.
func WithAllowedOrigins(patterns []string) Option {
	return func(h *Handler) { h.origins = patterns }
}

// WithReadLimit sets the maximum size of one inbound frame in bytes.
func WithReadLimit(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithClock replaces the envelope timestamp source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler returns a dictation handler that stores transcripts in log and
// forwards human utterances to a.
func NewHandler(a Agent, log *transcript.Log, opts ...Option) *Handler {
	h := &Handler{
		agent:     a,
		log:       log,
		human:     DefaultHumanIdentity,
		agentName: DefaultAgentIdentity,
		readLimit: defaultReadLimit,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(h)
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	return h
}

// SetCorrector swaps the vocabulary corrector used for audio transcripts.
// It is safe to call while connections are open.
func (h *Handler) SetCorrector(c *transcript.Corrector) {
	h.corrector.Store(c)
}

// conn is the per-connection state shared by the loop and its detached
// agent tasks. Writes are serialised by mu.
type conn struct {
	ws     *websocket.Conn
	ctx    context.Context
	logger *slog.Logger

	mu sync.Mutex
}

// ServeHTTP upgrades the request and runs the receive loop until the client
// disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	accept := &websocket.AcceptOptions{OriginPatterns: h.origins}
	if len(h.origins) == 0 {
		accept.InsecureSkipVerify = true
	}
	ws, err := websocket.Accept(w, r, accept)
	if err != nil {
		slog.Warn("dictate: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer func() { _ = ws.CloseNow() }()
	ws.SetReadLimit(h.readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.ctx, cancel)
	defer stop()

	h.wg.Add(1)
	defer h.wg.Done()

	c := &conn{
		ws:     ws,
		ctx:    ctx,
		logger: slog.With("conn_id", uuid.NewString(), "remote_addr", r.RemoteAddr),
	}
	c.logger.Info("dictate: client connected")
	if h.metrics != nil {
		h.metrics.ActiveConnections.Add(ctx, 1)
		defer h.metrics.ActiveConnections.Add(context.WithoutCancel(ctx), -1)
	}

	for {
		_, frame, err := ws.Read(ctx)
		if err != nil {
			h.logDisconnect(c, err)
			return
		}
		h.dispatch(c, frame)
	}
}

func (h *Handler) logDisconnect(c *conn, err error) {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		c.logger.Info("dictate: client disconnected")
		return
	}
	if c.ctx.Err() != nil {
		c.logger.Info("dictate: connection closed by server")
		return
	}
	c.logger.Warn("dictate: connection lost", "err", err)
}

// dispatch handles one inbound frame. Parse failures and handler errors are
// reported to the client; nothing here ends the loop.
func (h *Handler) dispatch(c *conn, frame []byte) {
	env, err := DecodeEnvelope(frame)
	if err != nil {
		h.recordIn(c.ctx, "invalid")
		c.logger.Warn("dictate: invalid envelope", "err", err)
		h.sendQuiet(c, errorEnvelope(CodeInvalidJSON, "Invalid JSON: "+err.Error(), nil, h.now()))
		return
	}
	h.recordIn(c.ctx, env.Type)

	ctx, span := observe.StartSpan(observe.WithLogger(c.ctx, c.logger), "dictate.message",
		trace.WithAttributes(attribute.String("message.type", env.Type)))
	defer span.End()

	if err := h.handle(ctx, c, env); err != nil {
		observe.FailSpan(span, err)
		c.logger.Error("dictate: handle message", "type", env.Type, "err", err)
		h.sendQuiet(c, errorEnvelope(CodeInternalError, err.Error(), env.Corr, h.now()))
	}
}

func (h *Handler) handle(ctx context.Context, c *conn, env Envelope) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("dictate: panic handling %s: %v", env.Type, p)
		}
	}()

	switch env.Type {
	case TypeTranscript:
		var data TranscriptData
		if err := env.decodeData(&data); err != nil {
			return err
		}
		sender, text := h.human, ""
		if data.Sender != nil {
			sender = *data.Sender
		} else {
			c.logger.Debug("dictate: transcript without sender, using default", "sender", sender)
		}
		if data.Text != nil {
			text = *data.Text
		} else {
			c.logger.Debug("dictate: transcript without text, using empty string")
		}
		return h.transcript(c, sender, text, env.Corr)

	case TypePing:
		return h.send(c, Envelope{Type: TypePong, Corr: env.Corr, TS: h.stamp(), Data: pongData})

	case TypeAudio:
		if h.stt != nil {
			return h.audio(ctx, c, env)
		}
	}

	c.logger.Warn("dictate: unknown message type", "type", env.typeLabel())
	return h.send(c, errorEnvelope(CodeUnknownMessageType, "Unknown message type: "+env.typeLabel(), env.Corr, h.now()))
}

// transcript stores and echoes one utterance, then starts the agent turn
// when the human sent it.
func (h *Handler) transcript(c *conn, sender, text string, corr *string) error {
	entry := h.log.Store(text, sender)
	env, err := newEnvelope(TypeTranscript, entry, nil, corr, h.now())
	if err != nil {
		return err
	}
	if err := h.send(c, env); err != nil {
		return err
	}
	if sender == h.human {
		h.wg.Add(1)
		go h.reply(c, text, corr)
	}
	return nil
}

// reply runs detached from the receive loop. A failed send means the client
// is gone and is only logged.
func (h *Handler) reply(c *conn, text string, corr *string) {
	defer h.wg.Done()

	answer := h.ask(c, text)
	entry := h.log.Store(answer, h.agentName)
	id := h.newID()
	env, err := newEnvelope(TypeTranscript, entry, &id, corr, h.now())
	if err != nil {
		c.logger.Error("dictate: encode agent reply", "err", err)
		return
	}
	if err := h.send(c, env); err != nil {
		c.logger.Debug("dictate: agent reply dropped", "err", err)
	}
}

func (h *Handler) ask(c *conn, text string) (answer string) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("dictate: agent panicked", "panic", p)
			answer = agent.ErrorReply(fmt.Errorf("%v", p))
		}
	}()
	return h.agent.ProcessText(text)
}

// audio transcribes a base64 clip and treats the result as a human
// transcript.
func (h *Handler) audio(ctx context.Context, c *conn, env Envelope) error {
	var data AudioData
	if err := env.decodeData(&data); err != nil {
		return err
	}
	if data.AudioData == "" {
		return h.send(c, errorEnvelope(CodeInvalidAudio, "Missing 'audio_data' field in audio message", env.Corr, h.now()))
	}
	clip, err := base64.StdEncoding.DecodeString(data.AudioData)
	if err != nil {
		return h.send(c, errorEnvelope(CodeInvalidAudio, "Failed to decode base64 audio data: "+err.Error(), env.Corr, h.now()))
	}

	start := time.Now()
	text, err := h.stt.Transcribe(ctx, clip)
	if h.metrics != nil {
		h.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		if !errors.Is(err, stt.ErrNoSpeech) {
			c.logger.Warn("dictate: transcription failed", "bytes", len(clip), "err", err)
		}
		return h.send(c, errorEnvelope(CodeTranscriptionFailed, "Audio transcription failed: "+err.Error(), env.Corr, h.now()))
	}

	if corrector := h.corrector.Load(); corrector != nil {
		corrected, fixes := corrector.Correct(text)
		for _, f := range fixes {
			c.logger.Debug("dictate: corrected term", "original", f.Original, "corrected", f.Corrected, "confidence", f.Confidence)
		}
		text = corrected
	}
	return h.transcript(c, h.human, text, env.Corr)
}

func (h *Handler) send(c *conn, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("dictate: encode %s envelope: %w", env.Type, err)
	}

	c.mu.Lock()
	err = c.ws.Write(c.ctx, websocket.MessageText, b)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("dictate: write %s envelope: %w", env.Type, err)
	}
	if h.metrics != nil {
		h.metrics.RecordMessage(c.ctx, "out", env.Type)
	}
	return nil
}

// sendQuiet sends an error report. Failures are swallowed.
func (h *Handler) sendQuiet(c *conn, env Envelope) {
	if err := h.send(c, env); err != nil {
		c.logger.Debug("dictate: error report dropped", "err", err)
	}
}

func (h *Handler) stamp() string {
	return h.now().Format(time.RFC3339Nano)
}

func (h *Handler) recordIn(ctx context.Context, msgType string) {
	if h.metrics == nil {
		return
	}
	switch msgType {
	case TypeTranscript, TypePing, TypeAudio, "invalid":
	default:
		msgType = "unknown"
	}
	h.metrics.RecordMessage(ctx, "in", msgType)
}

// Shutdown closes every open connection and waits for receive loops and
// in-flight agent replies to finish, or for ctx to expire.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dictate: shutdown: %w", ctx.Err())
	}
}

// Wait blocks until every receive loop and detached agent reply has
// finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}
