package publisher

import (
	"context"
	"sync"

	"fete/pkg/platform/audit"
)

// MemoryPublisher buffers events in memory. Tests assert against it; deploys
// without Kafka fall back to it so audit.Log still has a sink.
type MemoryPublisher struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewMemory() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Emit(_ context.Context, event audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything emitted so far.
func (p *MemoryPublisher) Events() []audit.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]audit.Event{}, p.events...)
}

// ByAction returns emitted events matching the action.
func (p *MemoryPublisher) ByAction(action string) []audit.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []audit.Event
	for _, e := range p.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
