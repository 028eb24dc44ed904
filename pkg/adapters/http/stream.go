package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/oapi-codegen/runtime"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
)

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // SessionID -> Set of Channels
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if subs, ok := sm.subscribers[sessionID]; ok {
		for ch := range subs {
			select {
			case ch <- msg:
			default:
				// Drop message if channel is full (slow client)
				slog.Warn("SSE: Client buffer full, dropping message", "session_id", sessionID)
			}
		}
	}
}

// Observer returns a ports.Observer that forwards each transition event,
// JSON-encoded, to the subscribers of that event's session. Attach it to
// the engine so GET /events streams live runs.
func (sm *StreamManager) Observer() ports.Observer {
	return ports.ObserverFunc(func(ev domain.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		sm.Broadcast(ev.SessionID, string(payload))
	})
}

// handleEvents serves GET /events as a server-sent-events stream of node
// transitions for one session. An optional node parameter narrows the
// stream to a comma-separated set of nodes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.streams == nil {
		http.Error(w, "event streaming is not enabled", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		s.logger.Error("events: streaming not supported")
		return
	}

	var sessionID string
	if err := runtime.BindQueryParameter("form", true, true, "session_id", r.URL.Query(), &sessionID); err != nil {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	// Parse 'node' filter
	var watchList []string
	if raw := r.URL.Query().Get("node"); raw != "" {
		watchList = strings.Split(raw, ",")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.streams.Subscribe(sessionID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	s.logger.Info("SSE: subscribed", "session_id", sessionID)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !eventMatches(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// eventMatches reports whether the encoded event's node is in the watch
// list. Unparseable payloads pass through unfiltered.
func eventMatches(msg string, watchList []string) bool {
	var ev domain.Event
	if err := json.Unmarshal([]byte(msg), &ev); err != nil {
		return true
	}
	for _, node := range watchList {
		if strings.TrimSpace(node) == string(ev.Node) {
			return true
		}
	}
	return false
}
