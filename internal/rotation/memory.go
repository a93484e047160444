package rotation

import (
	"context"
	"sync"
	"time"

	"github.com/heritagewhisper/keeper/pkg/models"
)

type shownEvent struct {
	promptID string
	surface  models.Surface
	at       time.Time
}

type dismissEvent struct {
	promptID string
	at       time.Time
}

// MemoryLedger is an in-process ledger. Default backend for single
// instance deployments and tests.
type MemoryLedger struct {
	mu        sync.Mutex
	shown     map[string][]shownEvent
	dismissed map[string][]dismissEvent
}

// NewMemoryLedger creates an empty in-process ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		shown:     make(map[string][]shownEvent),
		dismissed: make(map[string][]dismissEvent),
	}
}

// MarkShown records a show event.
func (l *MemoryLedger) MarkShown(_ context.Context, userID string, surface models.Surface, promptID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shown[userID] = append(l.shown[userID], shownEvent{promptID: promptID, surface: surface, at: at})
	return nil
}

// MarkDismissed records a dismissal event.
func (l *MemoryLedger) MarkDismissed(_ context.Context, userID, promptID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dismissed[userID] = append(l.dismissed[userID], dismissEvent{promptID: promptID, at: at})
	return nil
}

// ShownSince returns prompts shown since the cutoff, pruning older events.
func (l *MemoryLedger) ShownSince(_ context.Context, userID string, cutoff time.Time) (map[string]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.shown[userID][:0]
	ids := make(map[string]bool)
	for _, ev := range l.shown[userID] {
		if ev.at.Before(cutoff) {
			continue
		}
		kept = append(kept, ev)
		ids[ev.promptID] = true
	}
	l.shown[userID] = kept
	return ids, nil
}

// DismissedSince returns prompts dismissed since the cutoff, pruning older events.
func (l *MemoryLedger) DismissedSince(_ context.Context, userID string, cutoff time.Time) (map[string]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.dismissed[userID][:0]
	ids := make(map[string]bool)
	for _, ev := range l.dismissed[userID] {
		if ev.at.Before(cutoff) {
			continue
		}
		kept = append(kept, ev)
		ids[ev.promptID] = true
	}
	l.dismissed[userID] = kept
	return ids, nil
}
