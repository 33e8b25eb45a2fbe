package reconcile

import (
	"time"

	"github.com/starford/cetus/internal/models"
)

// watermark scans every delivered record for the maximum timestamp. Records
// are not assumed to arrive in timestamp order.
type watermark struct {
	index models.Index

	floor    time.Time
	hasFloor bool

	max     time.Time
	maxRaw  string
	maxUUID string

	stale   int
	untimed int
}

func newWatermark(index models.Index) *watermark {
	return &watermark{index: index}
}

// setFloor makes admit reject records at or before t.
func (w *watermark) setFloor(t time.Time) {
	w.floor = t
	w.hasFloor = true
}

// admit reports whether r is new and folds it into the maximum. A record
// without a timestamp cannot be placed against the floor, so it is kept only
// while no floor is set; otherwise every incremental run would append it
// again.
func (w *watermark) admit(r models.Record) bool {
	ts, err := r.Timestamp(w.index)
	if err != nil {
		w.untimed++
		return !w.hasFloor
	}
	if w.hasFloor && !ts.After(w.floor) {
		w.stale++
		return false
	}
	if w.maxRaw == "" || ts.After(w.max) {
		w.max = ts
		w.maxRaw = r.RawTimestamp(w.index)
		w.maxUUID = r.UUID()
	}
	return true
}

func (w *watermark) seen() bool {
	return w.maxRaw != ""
}
