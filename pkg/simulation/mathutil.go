package simulation

import "math"

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func abs(f float64) float64 {
	return math.Abs(f)
}
