package facematch

import "math"

// EuclideanDistance returns the L2 norm of a-b.
func EuclideanDistance(a, b Descriptor) (float64, error) {
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// CosineDistance returns 1 - cosine similarity, a value between 0 (same direction)
// and 2 (opposite). A zero vector has no direction: it is at distance 0 from
// another zero vector and at distance 1 from anything else.
func CosineDistance(a, b Descriptor) (float64, error) {
	if len(a) != len(b) {
		return 0, &ErrDimensionMismatch{Expected: len(a), Actual: len(b)}
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	switch {
	case normA == 0 && normB == 0:
		return 0, nil
	case normA == 0 || normB == 0:
		return 1, nil
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	similarity = max(-1, min(1, similarity))

	return 1 - similarity, nil
}

// Distance computes the distance between a and b with the given metric.
func Distance(metric Metric, a, b Descriptor) (float64, error) {
	if metric == MetricCosine {
		return CosineDistance(a, b)
	}
	return EuclideanDistance(a, b)
}
