package facematch

import (
	"errors"
	"fmt"
)

// Matcher applies a threshold decision on top of a distance metric.
// Thresholds are per descriptor source: embedding vectors sit around 0.6 under L2,
// landmark coordinates need much lower values.
type Matcher struct {
	Metric    Metric
	Threshold float64
	Policy    Policy
}

// NewMatcher creates a matcher and validates its threshold.
func NewMatcher(metric Metric, threshold float64, policy Policy) (Matcher, error) {
	if threshold <= 0 {
		return Matcher{}, fmt.Errorf("match threshold must be positive, got %v", threshold)
	}
	if policy == "" {
		policy = PolicyFirst
	}
	return Matcher{Metric: metric, Threshold: threshold, Policy: policy}, nil
}

// Distance returns the matcher's distance between a and b.
func (m Matcher) Distance(a, b Descriptor) (float64, error) {
	return Distance(m.Metric, a, b)
}

// IsMatch reports whether distance(a, b) is strictly below the threshold.
// A distance exactly at the threshold is not a match.
func (m Matcher) IsMatch(a, b Descriptor) (bool, float64, error) {
	d, err := m.Distance(a, b)
	if err != nil {
		return false, 0, err
	}
	return d < m.Threshold, d, nil
}

// BestOf compares probe against every reference descriptor of one candidate and returns
// the smallest distance. References of a different dimension are reported through
// the returned error only when no reference could be compared at all.
func (m Matcher) BestOf(probe Descriptor, refs []Descriptor) (float64, error) {
	if len(refs) == 0 {
		return 0, errors.New("candidate has no reference descriptors")
	}

	best := -1.0
	var firstErr error
	for _, ref := range refs {
		d, err := m.Distance(probe, ref)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if best < 0 || d < best {
			best = d
		}
	}
	if best < 0 {
		return 0, firstErr
	}
	return best, nil
}
