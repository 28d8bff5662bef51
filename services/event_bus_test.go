package services

import (
	"testing"
	"time"

	"hackathon-payout-system/models"
)

func TestPhaseBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewPhaseBus()
	defer bus.Close()

	first := bus.Subscribe()
	second := bus.Subscribe()

	change := PhaseChange{
		HackathonID: "h1",
		From:        models.PhaseVotingClosed,
		To:          models.PhaseCompleted,
		At:          time.Now().UTC(),
	}
	bus.Publish(change)

	for i, ch := range []<-chan PhaseChange{first, second} {
		select {
		case got := <-ch:
			if got.HackathonID != "h1" || got.To != models.PhaseCompleted {
				t.Errorf("subscriber %d: unexpected change %+v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no delivery", i)
		}
	}
}

func TestPhaseBusPublishNeverBlocks(t *testing.T) {
	bus := NewPhaseBus()
	defer bus.Close()
	ch := bus.Subscribe()

	// Publish past the buffer without a reader; the overflow is dropped.
	for i := 0; i < phaseBusBuffer+10; i++ {
		bus.Publish(PhaseChange{HackathonID: "h1", To: models.PhaseCompleted})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
		default:
			if received != phaseBusBuffer {
				t.Fatalf("expected %d buffered deliveries, got %d", phaseBusBuffer, received)
			}
			return
		}
	}
}

func TestPhaseBusClose(t *testing.T) {
	bus := NewPhaseBus()
	ch := bus.Subscribe()
	bus.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected subscriber channel closed")
	}

	// Publish and repeated Close after shutdown are no-ops.
	bus.Publish(PhaseChange{HackathonID: "h1"})
	bus.Close()

	late := bus.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("expected late subscription to return a closed channel")
	}
}
