package clustering

import "math"

// MinK and MaxK bound the adaptive cluster count.
const (
	MinK = 3
	MaxK = 8
)

// ChooseK picks the cluster count for n samples: it grows slowly with n and
// is capped at MaxK.
func ChooseK(n int) int {
	switch {
	case n < 30:
		return MinK
	case n < 75:
		return 4
	case n < 150:
		return 5
	}
	k := int(math.Floor(math.Sqrt(float64(n))))
	if k > MaxK {
		return MaxK
	}
	return k
}

// Normalize scales each vector to unit L2 length so squared Euclidean
// distance between results is 2 - 2*cosine. Zero vectors stay zero.
func Normalize(vectors [][]float32) [][]float64 {
	out := make([][]float64, len(vectors))
	for i, v := range vectors {
		var sum float64
		row := make([]float64, len(v))
		for j, x := range v {
			row[j] = float64(x)
			sum += row[j] * row[j]
		}
		if sum > 0 {
			norm := math.Sqrt(sum)
			for j := range row {
				row[j] /= norm
			}
		}
		out[i] = row
	}
	return out
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
