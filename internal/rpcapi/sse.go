package rpcapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opencode-ai/agentrund/internal/logging"
)

// sseHeartbeatInterval mirrors telnet2-opencode's SSEHeartbeatInterval.
const sseHeartbeatInterval = 30 * time.Second

// sseWriter wraps http.ResponseWriter for SSE, grounded on
// telnet2-opencode's internal/server/sse.go sseWriter.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("rpcapi: streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher, rc: http.NewResponseController(w)}, nil
}

func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprint(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// sseEnvelope is the wire shape of one streamed item: an Event, a
// ProviderDelta, or a terminal error (exactly one set), matching
// subscription.Envelope.
type sseEnvelope struct {
	Event *sseEvent `json:"event,omitempty"`
	Delta *sseDelta `json:"delta,omitempty"`
	Error string    `json:"error,omitempty"`
}

type sseEvent struct {
	SequenceNumber uint64 `json:"sequenceNumber"`
	Timestamp      int64  `json:"timestamp"`
	Kind           string `json:"kind"`
	Payload        any    `json:"payload"`
}

type sseDelta struct {
	OpID string `json:"opID"`
	Text string `json:"text,omitempty"`
}

func (srv *HTTPServer) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDParam(r)
	from := parseFromQuery(r)

	sse, err := newSSEWriter(w)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	envelopes, err := srv.service.Subscribe(r.Context(), sessionID, from)
	if err != nil {
		sse.writeEvent("error", ErrorDetail{Message: err.Error()})
		return
	}

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case env, ok := <-envelopes:
			if !ok {
				return
			}
			if env.Err != nil {
				if werr := sse.writeEvent("error", sseEnvelope{Error: env.Err.Error()}); werr != nil {
					return
				}
				return
			}
			if env.Event != nil {
				data := sseEnvelope{Event: &sseEvent{
					SequenceNumber: uint64(env.Event.SequenceNumber),
					Timestamp:      int64(env.Event.Timestamp),
					Kind:           string(env.Event.Kind),
					Payload:        env.Event.Payload,
				}}
				if werr := sse.writeEvent("event", data); werr != nil {
					logging.Warn().Err(werr).Str("sessionID", string(sessionID)).Msg("rpcapi: sse write failed, closing stream")
					return
				}
			}
			if env.Delta != nil {
				data := sseEnvelope{Delta: &sseDelta{OpID: string(env.Delta.OpID), Text: env.Delta.Delta.Text}}
				if werr := sse.writeEvent("delta", data); werr != nil {
					return
				}
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}
