package tutorial

import (
	"fmt"
	"sort"
	"sync"
)

// Indicator is the display state of one step marker.
type Indicator struct {
	Active    bool `json:"active"`
	Completed bool `json:"completed"`
}

// String returns "active", "completed", "active+completed" or "pending".
func (i Indicator) String() string {
	switch {
	case i.Active && i.Completed:
		return "active+completed"
	case i.Active:
		return "active"
	case i.Completed:
		return "completed"
	}
	return "pending"
}

// ProgressState is a copy of the engine state.
type ProgressState struct {
	Index     int   `json:"index"`
	Completed []int `json:"completed"`
	Total     int   `json:"total"`
}

// Progress owns the current step index and the completed set for one
// open question. All mutation goes through its methods.
type Progress struct {
	mu        sync.Mutex
	total     int
	index     int
	completed map[int]bool
}

// NewProgress returns progress at step 0 with nothing completed.
func NewProgress(total int) (*Progress, error) {
	if total <= 0 {
		return nil, ErrNoQuestion
	}
	return &Progress{total: total, completed: make(map[int]bool)}, nil
}

// Total returns the number of steps.
func (p *Progress) Total() int {
	return p.total
}

// Current returns the active step index.
func (p *Progress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// IsLast reports whether index is the final step.
func (p *Progress) IsLast(index int) bool {
	return index == p.total-1
}

// GoTo moves to any in-range index. Prior steps need not be completed.
// Out-of-range indices fail and leave the index unchanged.
func (p *Progress) GoTo(index int) error {
	if index < 0 || index >= p.total {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrStepOutOfRange, index, p.total-1)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = index
	return nil
}

// Next moves forward one step. It does not wrap.
func (p *Progress) Next() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index >= p.total-1 {
		return ErrAtLastStep
	}
	p.index++
	return nil
}

// Previous moves back one step. It does not wrap.
func (p *Progress) Previous() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index <= 0 {
		return ErrAtFirstStep
	}
	p.index--
	return nil
}

// MarkCompleted adds index to the completed set. Repeated calls are
// harmless. The current index is not changed.
func (p *Progress) MarkCompleted(index int) error {
	if index < 0 || index >= p.total {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrStepOutOfRange, index, p.total-1)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed[index] = true
	return nil
}

// IsCompleted reports membership in the completed set.
func (p *Progress) IsCompleted(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed[index]
}

// Indicator derives the marker state for index.
func (p *Progress) Indicator(index int) Indicator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Indicator{Active: p.index == index, Completed: p.completed[index]}
}

// Indicators returns one marker per step.
func (p *Progress) Indicators() []Indicator {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Indicator, p.total)
	for i := range out {
		out[i] = Indicator{Active: p.index == i, Completed: p.completed[i]}
	}
	return out
}

// Snapshot copies the state. Completed is sorted.
func (p *Progress) Snapshot() ProgressState {
	p.mu.Lock()
	defer p.mu.Unlock()
	done := make([]int, 0, len(p.completed))
	for i := range p.completed {
		done = append(done, i)
	}
	sort.Ints(done)
	return ProgressState{Index: p.index, Completed: done, Total: p.total}
}

// Reset returns to step 0 with nothing completed.
func (p *Progress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = 0
	p.completed = make(map[int]bool)
}

// advanceFrom moves from k to k+1 only if the index is still k.
func (p *Progress) advanceFrom(k int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index != k || k >= p.total-1 {
		return false
	}
	p.index = k + 1
	return true
}
