package sim

import "fmt"

// CheckpointStore keeps one full-ensemble snapshot per closed simulation
// year. Slot 0 is the pristine initial state; slot i holds the state right
// after year startYear+i-1 closed. The arena is sized for the whole run up
// front so a restore never allocates slots.
type CheckpointStore struct {
	startYear int
	slots     []checkpointSlot
	last      int
}

type checkpointSlot struct {
	valid bool
	date  Date
	runs  []realizationState
}

// NewCheckpointStore builds an arena covering startYear..endYear plus the
// pristine slot.
func NewCheckpointStore(startYear, endYear int) *CheckpointStore {
	return &CheckpointStore{
		startYear: startYear,
		slots:     make([]checkpointSlot, endYear-startYear+2),
		last:      -1,
	}
}

// SaveInitial snapshots the untouched ensemble into slot 0.
func (s *CheckpointStore) SaveInitial(date Date, runs []*Realization) {
	s.save(0, date, runs)
}

// Save snapshots the ensemble after date's year closed. The slot index is
// derived from the year, so re-closing a year after a restore overwrites
// the stale snapshot.
func (s *CheckpointStore) Save(date Date, runs []*Realization) {
	s.save(date.Year-s.startYear+1, date, runs)
}

func (s *CheckpointStore) save(index int, date Date, runs []*Realization) {
	slot := &s.slots[index]
	slot.valid = true
	slot.date = date
	slot.runs = slot.runs[:0]
	for _, r := range runs {
		slot.runs = append(slot.runs, r.snapshot())
	}
	s.last = index
}

// Restore copies slot index back into the ensemble and returns the date
// the snapshot was taken at.
func (s *CheckpointStore) Restore(index int, runs []*Realization) (Date, error) {
	if index < 0 || index >= len(s.slots) || !s.slots[index].valid {
		return Date{}, fmt.Errorf("no checkpoint at index %d", index)
	}
	slot := &s.slots[index]
	if len(slot.runs) != len(runs) {
		return Date{}, fmt.Errorf("checkpoint %d holds %d runs, ensemble has %d", index, len(slot.runs), len(runs))
	}
	for i, r := range runs {
		r.restore(slot.runs[i])
	}
	s.last = index
	return slot.date, nil
}

// Last returns the index of the most recently saved or restored slot, or
// -1 before the initial save.
func (s *CheckpointStore) Last() int { return s.last }

// Has reports whether slot index holds a snapshot.
func (s *CheckpointStore) Has(index int) bool {
	return index >= 0 && index < len(s.slots) && s.slots[index].valid
}

// DateAt returns the snapshot date of slot index.
func (s *CheckpointStore) DateAt(index int) Date {
	return s.slots[index].date
}

// MeanInfected averages the total infected hosts across the runs stored
// in slot index.
func (s *CheckpointStore) MeanInfected(index int) int64 {
	slot := &s.slots[index]
	if !slot.valid || len(slot.runs) == 0 {
		return 0
	}
	var sum int64
	for _, st := range slot.runs {
		sum += int64(st.Infected.Sum())
	}
	return sum / int64(len(slot.runs))
}

// Len returns the arena size including the pristine slot.
func (s *CheckpointStore) Len() int { return len(s.slots) }
