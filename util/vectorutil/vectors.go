package vectorutil

import (
	"fmt"
	"math"
	"slices"
)

// Mean of a float64 vector. The mean of an empty vector is 0.
func Mean(vector []float64) float64 {
	if len(vector) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vector {
		sum += v
	}
	return sum / float64(len(vector))
}

// LogSoftMax computes log softmax scores of a vector in float64 for
// numerical stability.
func LogSoftMax(vector []float32) []float64 {
	maxLogit := slices.Max(vector)
	shifted := make([]float64, len(vector))
	sumExp := 0.0
	for i, logit := range vector {
		shifted[i] = float64(logit - maxLogit)
		sumExp += math.Exp(shifted[i])
	}
	logSum := math.Log(sumExp)
	scores := make([]float64, len(vector))
	for i, s := range shifted {
		scores[i] = s - logSum
	}
	return scores
}

// LogSumExp computes log(sum(exp(s))) without overflowing.
func LogSumExp(s []float64) float64 {
	maxValue := slices.Max(s)
	if math.IsInf(maxValue, -1) {
		return maxValue
	}
	sum := 0.0
	for _, v := range s {
		sum += math.Exp(v - maxValue)
	}
	return maxValue + math.Log(sum)
}

// ArgMax find both index of max value in s and max value.
func ArgMax(s []float32) (int, float32, error) {
	if len(s) == 0 {
		return 0, 0, fmt.Errorf("attempted to calculate argmax of empty slice")
	}
	maxIndex := 0
	maxValue := s[0]
	for i, v := range s {
		if v > maxValue {
			maxValue = v
			maxIndex = i
		}
	}
	return maxIndex, maxValue, nil
}

// Sigmoid of a single value.
func Sigmoid(v float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(v))))
}

// Tanh of a single value.
func Tanh(v float32) float32 {
	return float32(math.Tanh(float64(v)))
}
