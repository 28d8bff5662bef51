package services

import (
	"log"
	"sync"
	"time"

	"hackathon-payout-system/models"
)

// PhaseChange is published on the bus after a lifecycle transition commits.
type PhaseChange struct {
	HackathonID string
	From        models.HackathonPhase
	To          models.HackathonPhase
	At          time.Time
}

// PhaseBus is an in-process publish/subscribe channel for phase-changed
// notifications. Publish never blocks: a subscriber that falls behind loses
// the notification (the reconciliation sweep covers missed deliveries).
type PhaseBus struct {
	mu     sync.RWMutex
	subs   []chan PhaseChange
	closed bool
}

const phaseBusBuffer = 64

func NewPhaseBus() *PhaseBus {
	return &PhaseBus{}
}

// Subscribe registers a new subscriber and returns its channel. The channel
// is closed when the bus shuts down.
func (b *PhaseBus) Subscribe() <-chan PhaseChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan PhaseChange, phaseBusBuffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

func (b *PhaseBus) Publish(change PhaseChange) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- change:
		default:
			log.Printf("[BUS] ⚠️ Subscriber buffer full, dropping phase change for hackathon %s (%s → %s)",
				change.HackathonID, change.From, change.To)
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *PhaseBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
