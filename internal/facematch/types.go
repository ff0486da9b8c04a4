// Package facematch compares facial descriptors and decides whether two of them
// belong to the same person. It is pure: no storage, no I/O.
package facematch

import (
	"fmt"
	"strings"
)

// Descriptor is a facial feature vector produced by the embedding service.
// Its dimensionality is a property of the model that produced it.
type Descriptor []float32

// Metric selects the distance function used to compare descriptors.
type Metric int

const (
	MetricL2 Metric = iota
	MetricCosine
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "l2"
	case MetricCosine:
		return "cosine"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMetric parses a metric name as used in configuration files.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "l2", "euclidean":
		return MetricL2, nil
	case "cosine":
		return MetricCosine, nil
	default:
		return 0, fmt.Errorf("unknown distance metric %q", s)
	}
}

// Policy decides which candidate wins when several are under the threshold.
type Policy string

const (
	// PolicyFirst returns the first candidate under the threshold in scan order.
	PolicyFirst Policy = "first"
	// PolicyNearest scans every candidate and returns the closest one under the threshold.
	PolicyNearest Policy = "nearest"
)

// ParsePolicy parses a match policy name. Empty means PolicyFirst.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyFirst:
		return PolicyFirst, nil
	case PolicyNearest:
		return PolicyNearest, nil
	default:
		return "", fmt.Errorf("unknown match policy %q", s)
	}
}

// ErrDimensionMismatch is returned when two descriptors of different length are compared.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("descriptor dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}
