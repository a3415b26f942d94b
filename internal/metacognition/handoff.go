package metacognition

import (
	"fmt"
	"sync"
	"time"

	"agentrt/internal/ids"
)

// HumanRequest is dispatched to a handoff channel handler (spec.md §4.P).
type HumanRequest struct {
	RequestID string
	Question  string
	Context   string
	Urgency   string
	Options   []string
	CreatedAt time.Time
}

// HumanResponse answers a HumanRequest.
type HumanResponse struct {
	RequestID string
	Answer    string
	Selected  string
}

// ChannelHandler dispatches a HumanRequest over some transport (console,
// messaging, a custom callback, or a websocket connection fed by
// gorilla/websocket upstream of this package). The handler only needs to
// deliver the request; the response comes back through ProvideResponse.
type ChannelHandler func(HumanRequest) error

// HumanHandoff tracks concurrent human-assistance requests by request_id,
// matching each against a later ProvideResponse call or a timeout
// (spec.md §4.P).
type HumanHandoff struct {
	mu       sync.Mutex
	channels map[string]ChannelHandler
	waiters  map[string]chan HumanResponse
}

// NewHumanHandoff creates an empty handoff registry.
func NewHumanHandoff() *HumanHandoff {
	return &HumanHandoff{
		channels: make(map[string]ChannelHandler),
		waiters:  make(map[string]chan HumanResponse),
	}
}

// RegisterChannel installs a handler for the named channel (e.g. "console",
// "messaging", "websocket", or any custom-callback name).
func (h *HumanHandoff) RegisterChannel(name string, handler ChannelHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.channels[name] = handler
}

// RequestHelp creates a HumanRequest, dispatches it via the named channel
// (or all registered channels if empty), and blocks until a matching
// ProvideResponse call or timeout.
func (h *HumanHandoff) RequestHelp(question, context, urgency string, options []string, timeout time.Duration, channel string) (*HumanResponse, error) {
	req := HumanRequest{
		RequestID: ids.Prefixed("handoff"),
		Question:  question,
		Context:   context,
		Urgency:   urgency,
		Options:   options,
		CreatedAt: time.Now().UTC(),
	}

	wait := make(chan HumanResponse, 1)
	h.mu.Lock()
	h.waiters[req.RequestID] = wait
	handlers := h.handlersFor(channel)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.waiters, req.RequestID)
		h.mu.Unlock()
	}()

	if len(handlers) == 0 {
		return nil, fmt.Errorf("metacognition: no handoff channel handler registered")
	}
	for _, handler := range handlers {
		if err := handler(req); err != nil {
			return nil, fmt.Errorf("metacognition: dispatch handoff request: %w", err)
		}
	}

	select {
	case resp := <-wait:
		return &resp, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

func (h *HumanHandoff) handlersFor(channel string) []ChannelHandler {
	if channel != "" {
		if handler, ok := h.channels[channel]; ok {
			return []ChannelHandler{handler}
		}
		return nil
	}
	out := make([]ChannelHandler, 0, len(h.channels))
	for _, handler := range h.channels {
		out = append(out, handler)
	}
	return out
}

// ProvideResponse delivers resp to the waiter for requestID, if any is still
// pending. Returns false if no matching waiter exists (already timed out,
// cancelled, or unknown id).
func (h *HumanHandoff) ProvideResponse(requestID string, resp HumanResponse) bool {
	h.mu.Lock()
	wait, ok := h.waiters[requestID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	resp.RequestID = requestID
	select {
	case wait <- resp:
		return true
	default:
		return false
	}
}

// CancelRequest unblocks any waiter for requestID without a real response.
func (h *HumanHandoff) CancelRequest(requestID string) bool {
	h.mu.Lock()
	wait, ok := h.waiters[requestID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case wait <- HumanResponse{RequestID: requestID}:
		return true
	default:
		return false
	}
}
