package group

import (
	"context"
	"sync"
)

// mailbox holds the undelivered messages of one rank.
type mailbox struct {
	mu     sync.Mutex
	msgs   []Message
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{})}
}

func (m *mailbox) put(msg Message) {
	m.mu.Lock()
	m.msgs = append(m.msgs, msg)
	// Wake every waiter; each one rescans for its own match.
	close(m.signal)
	m.signal = make(chan struct{})
	m.mu.Unlock()
}

func (m *mailbox) take(ctx context.Context, src, tag int) (Message, error) {
	for {
		m.mu.Lock()
		for i, msg := range m.msgs {
			if (src == AnySource || msg.Source == src) && (tag == AnyTag || msg.Tag == tag) {
				m.msgs = append(m.msgs[:i], m.msgs[i+1:]...)
				m.mu.Unlock()
				return msg, nil
			}
		}
		wait := m.signal
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// pending returns the number of queued messages.
func (m *mailbox) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}
