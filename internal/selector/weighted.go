// Package selector provides the weighted random selection primitive shared by
// traffic-source, device, and country choices.
package selector

import (
	"errors"
	"math/rand/v2"
)

// Errors returned by the selector package.
var (
	// ErrNoOptions is returned when a selector is built without any options.
	ErrNoOptions = errors.New("selector: no options provided")
	// ErrInvalidWeights is returned when no option carries a positive weight.
	ErrInvalidWeights = errors.New("selector: all weights are zero")
	// ErrNegativeWeight is returned when an option has a negative weight.
	ErrNegativeWeight = errors.New("selector: negative weight")
)

// Option pairs a selectable value with its relative weight.
// A weight of zero is allowed and means the option is never selected.
type Option[T any] struct {
	Value  T
	Weight int
}

// weightedEntry is an option in the selection pool with its cumulative weight.
type weightedEntry[T any] struct {
	value            T
	cumulativeWeight int
}

// Selector picks values by weighted random choice: over many draws the
// empirical frequency of each value converges to weight/totalWeight.
//
// The pool is immutable after construction, so a Selector is safe for
// concurrent use as long as each caller passes its own random source.
type Selector[T any] struct {
	entries     []weightedEntry[T]
	totalWeight int
}

// New builds a selector from the given options.
// Zero-weight options are excluded from the pool; if every option has weight
// zero the configuration is invalid and ErrInvalidWeights is returned.
func New[T any](options []Option[T]) (*Selector[T], error) {
	if len(options) == 0 {
		return nil, ErrNoOptions
	}

	s := &Selector[T]{entries: make([]weightedEntry[T], 0, len(options))}
	for _, opt := range options {
		if opt.Weight < 0 {
			return nil, ErrNegativeWeight
		}
		if opt.Weight == 0 {
			continue
		}
		s.totalWeight += opt.Weight
		s.entries = append(s.entries, weightedEntry[T]{
			value:            opt.Value,
			cumulativeWeight: s.totalWeight,
		})
	}

	if s.totalWeight == 0 {
		return nil, ErrInvalidWeights
	}
	return s, nil
}

// Pick draws one value using the provided random source.
// The draw is uniform in [0, totalWeight); a binary search over the
// cumulative weights locates the selected entry.
func (s *Selector[T]) Pick(rng *rand.Rand) T {
	target := rng.IntN(s.totalWeight)

	low, high := 0, len(s.entries)-1
	for low < high {
		mid := (low + high) / 2
		if s.entries[mid].cumulativeWeight <= target {
			low = mid + 1
		} else {
			high = mid
		}
	}
	return s.entries[low].value
}

// TotalWeight returns the sum of all positive option weights.
func (s *Selector[T]) TotalWeight() int {
	return s.totalWeight
}

// Len returns the number of selectable (positive-weight) options.
func (s *Selector[T]) Len() int {
	return len(s.entries)
}

// Values returns the selectable values in pool order.
func (s *Selector[T]) Values() []T {
	values := make([]T, len(s.entries))
	for i, e := range s.entries {
		values[i] = e.value
	}
	return values
}
