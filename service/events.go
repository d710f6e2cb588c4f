package service

import (
	"sync"
	"time"
)

// EventType discriminates the motion events published by the runtime.
type EventType string

const (
	// EventSubscribed confirms a stream subscription is live. Events
	// published after it has been received will not be missed.
	EventSubscribed EventType = "subscribed"
	// EventArmed is published when an axis arms a new motion.
	EventArmed EventType = "armed"
	// EventDelays carries a batch of generated step delays.
	EventDelays EventType = "delays"
	// EventCompleted is published when a motion has produced all steps.
	EventCompleted EventType = "completed"
)

// Event is one motion event. Seq identifies the motion within its axis.
type Event struct {
	Type        EventType `json:"type"`
	Axis        string    `json:"axis"`
	Seq         uint64    `json:"seq"`
	Steps       uint32    `json:"steps,omitempty"`
	MaxVelocity float64   `json:"max_velocity,omitempty"`
	Delays      []float64 `json:"delays,omitempty"`
	// Duration is the summed delay time of the whole motion, in the
	// configured unit of time.
	Duration  float64   `json:"duration,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// hub fans motion events out to subscribers. Slow subscribers lose events
// rather than stalling step generation.
type hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan Event]struct{})}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *hub) publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	h.mu.Lock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *hub) close() {
	h.mu.Lock()
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}
