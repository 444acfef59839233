package models

import "math"

// SanitizeFloat replaces NaN and Inf, which JSON cannot encode, with 0
func SanitizeFloat(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0.0
	}
	return value
}

// SanitizeSlice returns a sanitized copy of values
func SanitizeSlice(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = SanitizeFloat(v)
	}
	return out
}

// SanitizeMap returns a sanitized copy of values
func SanitizeMap(values map[string]float64) map[string]float64 {
	if values == nil {
		return nil
	}
	out := make(map[string]float64, len(values))
	for k, v := range values {
		out[k] = SanitizeFloat(v)
	}
	return out
}
