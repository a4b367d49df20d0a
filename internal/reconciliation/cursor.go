package reconciliation

import (
	"strconv"

	"github.com/emperorhan/bridgescope-indexer/internal/normalizer"
	"github.com/emperorhan/bridgescope-indexer/internal/pipeline"
)

// cursorAdvance derives the next cursor from one page. It moves one past the
// highest block with a stored record, but never past the last block of a
// full page, which may continue on the next page. Failed records are
// skipped like the rest of the tick.
type cursorAdvance struct {
	from   int64
	stored int64
	limit  int64
}

func newCursorAdvance(from int64) *cursorAdvance {
	return &cursorAdvance{from: from, stored: -1, limit: -1}
}

func (a *cursorAdvance) observe(block string, outcome pipeline.Outcome) {
	b, err := strconv.ParseInt(block, 10, 64)
	if err != nil {
		return
	}
	if outcome != pipeline.OutcomeInserted && outcome != pipeline.OutcomeSkipped {
		return
	}
	if b > a.stored {
		a.stored = b
	}
}

func (a *cursorAdvance) truncated(events []normalizer.IndexedEvent, batchSize int) {
	if batchSize <= 0 || len(events) < batchSize {
		return
	}
	last := int64(-1)
	for _, ev := range events {
		if b, err := strconv.ParseInt(ev.BlockNumber, 10, 64); err == nil && b > last {
			last = b
		}
	}
	if last < 0 {
		return
	}
	// A full page inside one block would otherwise be refetched forever.
	if last <= a.from {
		last = a.from + 1
	}
	a.bound(last)
}

func (a *cursorAdvance) bound(b int64) {
	if a.limit < 0 || b < a.limit {
		a.limit = b
	}
}

func (a *cursorAdvance) next() int64 {
	next := a.from
	if a.stored+1 > next {
		next = a.stored + 1
	}
	if a.limit >= 0 && a.limit < next {
		next = a.limit
	}
	if next < a.from {
		next = a.from
	}
	return next
}
