package httptransport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskstream/internal/aggregate"
	"taskstream/internal/subscription"
	id "taskstream/pkg/domain"
	dErrors "taskstream/pkg/domain-errors"
	"taskstream/pkg/requestcontext"
)

const heartbeatInterval = 15 * time.Second

// sseChannel adapts one SSE response to the dispatcher's push-channel
// capability. Send is called from the dispatcher's delivery goroutine,
// heartbeats from the handler goroutine; the mutex keeps frames whole.
type sseChannel struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
	once    sync.Once
}

func newSSEChannel(w http.ResponseWriter, flusher http.Flusher) *sseChannel {
	return &sseChannel{w: w, flusher: flusher, done: make(chan struct{})}
}

// Send writes one event frame. The frame id is "<aggregateID>:<seq>", which
// doubles as the Last-Event-ID resume token.
func (c *sseChannel) Send(event aggregate.Event) error {
	encoded, err := toEventResponse(event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return fmt.Errorf("stream closed")
	default:
	}
	_, err = fmt.Fprintf(c.w, "id: %s:%d\nevent: %s\ndata: %s\n\n",
		event.AggregateID, event.Seq, event.Kind, data)
	if err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *sseChannel) heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprint(c.w, ": ping\n\n"); err != nil {
		return err
	}
	c.flusher.Flush()
	return nil
}

// Close unblocks the handler; it never touches the response writer because
// the handler goroutine owns the connection teardown.
func (c *sseChannel) Close() {
	c.once.Do(func() { close(c.done) })
}

// handleStream serves the live event stream over SSE. Topics come from
// repeated "topic" query parameters; a Last-Event-ID header (or lastEventId
// parameter) resumes one aggregate's history before going live.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	rawTopics := r.URL.Query()["topic"]
	if len(rawTopics) == 0 {
		rawTopics = []string{"all"}
	}
	topics := make([]subscription.Topic, 0, len(rawTopics))
	for _, raw := range rawTopics {
		topic, err := subscription.ParseTopic(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		topics = append(topics, topic)
	}

	resumeID, resumeSeq, err := parseResumeToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// A token-supplied session keeps cursors stable across reconnects;
	// anonymous streams get a fresh session per connection.
	sessionID := requestcontext.SessionID(ctx)
	if sessionID.IsNil() {
		sessionID = id.SessionID(uuid.New())
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	channel := newSSEChannel(w, flusher)

	// Attach before subscribing and replaying. Anything committed while the
	// replay streams out queues on the subscriber buffer instead of being
	// lost, and the delivery cursor drops whatever the replay already sent.
	h.registry.Connect(sessionID, r.UserAgent())
	startDelivery := h.dispatcher.Attach(sessionID, channel)
	defer func() {
		h.dispatcher.Detach(sessionID)
		h.registry.DropSession(sessionID)
	}()
	for _, topic := range topics {
		h.registry.Subscribe(sessionID, topic)
	}

	// Replay the resumed aggregate before going live so the client sees
	// sinceSeq+1..N exactly once and in order.
	if resumeID != uuid.Nil {
		events, err := h.store.ReadFrom(ctx, resumeID, resumeSeq)
		if err != nil {
			h.log.WithError(err).Warn("stream resume replay failed")
			return
		}
		for _, event := range events {
			if !h.registry.Advance(sessionID, event.AggregateID, event.Seq) {
				continue
			}
			if err := channel.Send(event); err != nil {
				return
			}
		}
	}

	startDelivery()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-channel.done:
			// Dispatcher dropped us (saturation or send failure).
			return
		case <-heartbeat.C:
			if err := channel.heartbeat(); err != nil {
				return
			}
		}
	}
}

// parseResumeToken reads "<aggregateID>:<seq>" from the Last-Event-ID
// header, falling back to the lastEventId query parameter.
func parseResumeToken(r *http.Request) (uuid.UUID, uint64, error) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	if raw == "" {
		return uuid.Nil, 0, nil
	}
	idPart, seqPart, found := strings.Cut(raw, ":")
	if !found {
		return uuid.Nil, 0, dErrors.New(dErrors.CodeInvalidInput, "malformed resume token")
	}
	aggregateID, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, 0, dErrors.New(dErrors.CodeInvalidInput, "malformed resume token")
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return uuid.Nil, 0, dErrors.New(dErrors.CodeInvalidInput, "malformed resume token")
	}
	return aggregateID, seq, nil
}
