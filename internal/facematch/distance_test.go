package facematch

import (
	"errors"
	"math"
	"testing"
)

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        Descriptor
		b        Descriptor
		expected float64
	}{
		{name: "identical", a: Descriptor{1, 2, 3}, b: Descriptor{1, 2, 3}, expected: 0},
		{name: "unit step", a: Descriptor{0, 0}, b: Descriptor{0.01, 0}, expected: 0.01},
		{name: "pythagoras", a: Descriptor{0, 0}, b: Descriptor{3, 4}, expected: 5},
		{name: "far apart", a: Descriptor{0, 0}, b: Descriptor{5, 5}, expected: math.Sqrt(50)},
		{name: "both empty", a: Descriptor{}, b: Descriptor{}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EuclideanDistance(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("EuclideanDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pairs := [][2]Descriptor{
		{{0, 0}, {0.01, 0}},
		{{1, -2, 3.5}, {-4, 0.25, 9}},
		{{0.1, 0.2, 0.3, 0.4}, {0.4, 0.3, 0.2, 0.1}},
	}

	for _, metric := range []Metric{MetricL2, MetricCosine} {
		for _, p := range pairs {
			ab, err := Distance(metric, p[0], p[1])
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", metric, err)
			}
			ba, err := Distance(metric, p[1], p[0])
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", metric, err)
			}
			if ab != ba {
				t.Errorf("%s: distance(a,b)=%v != distance(b,a)=%v", metric, ab, ba)
			}
			self, _ := Distance(metric, p[0], p[0])
			if math.Abs(self) > 1e-9 {
				t.Errorf("%s: distance(a,a) = %v, want 0", metric, self)
			}
		}
	}
}

func TestDistance_DimensionMismatch(t *testing.T) {
	pairs := [][2]Descriptor{
		{{0, 0}, {0, 0, 0}},
		{{1}, {}},
		{{}, {1, 2, 3, 4}},
	}

	for _, metric := range []Metric{MetricL2, MetricCosine} {
		for _, p := range pairs {
			_, err := Distance(metric, p[0], p[1])
			var dm *ErrDimensionMismatch
			if !errors.As(err, &dm) {
				t.Fatalf("%s: expected ErrDimensionMismatch for %v vs %v, got %v", metric, p[0], p[1], err)
			}
			if dm.Expected != len(p[0]) || dm.Actual != len(p[1]) {
				t.Errorf("%s: got expected=%d actual=%d", metric, dm.Expected, dm.Actual)
			}
		}
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        Descriptor
		b        Descriptor
		expected float64
	}{
		{name: "same direction", a: Descriptor{1, 0}, b: Descriptor{2, 0}, expected: 0},
		{name: "orthogonal", a: Descriptor{1, 0}, b: Descriptor{0, 1}, expected: 1},
		{name: "opposite", a: Descriptor{1, 0}, b: Descriptor{-1, 0}, expected: 2},
		{name: "zero vector", a: Descriptor{0, 0}, b: Descriptor{1, 1}, expected: 1},
		{name: "both zero", a: Descriptor{0, 0}, b: Descriptor{0, 0}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineDistance(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("CosineDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		input   string
		want    Metric
		wantErr bool
	}{
		{"", MetricL2, false},
		{"l2", MetricL2, false},
		{"Euclidean", MetricL2, false},
		{" cosine ", MetricCosine, false},
		{"manhattan", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMetric(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMetric(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseMetric(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
