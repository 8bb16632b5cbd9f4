package dispatcher

import (
	"sync"
	"time"

	"altcoin/internal/models"
)

// pairWorker holds at most one pending run for its pair. Triggers that arrive
// while a run is pending or in progress fold into that pending run, keeping
// the highest cutoff seen.
type pairWorker struct {
	pair models.TradingPair
	wake chan struct{}

	mu         sync.Mutex
	cutoff     time.Time
	hasPending bool
	halted     bool
}

func newPairWorker(pair models.TradingPair) *pairWorker {
	return &pairWorker{
		pair: pair,
		wake: make(chan struct{}, 1),
	}
}

func (w *pairWorker) trigger(cutoff time.Time) bool {
	w.mu.Lock()
	if w.halted {
		w.mu.Unlock()
		return false
	}
	if !w.hasPending || cutoff.After(w.cutoff) {
		w.cutoff = cutoff
	}
	w.hasPending = true
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

func (w *pairWorker) take() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasPending || w.halted {
		return time.Time{}, false
	}
	w.hasPending = false
	return w.cutoff, true
}

func (w *pairWorker) halt() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.halted = true
	w.hasPending = false
}

func (w *pairWorker) isHalted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.halted
}
