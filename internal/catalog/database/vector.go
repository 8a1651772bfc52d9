package database

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// vectorLiteral renders a vector as the pgvector input literal
// "[f1,f2,...]".
func vectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("%w: empty vector", ErrInvalidInput)
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return "", fmt.Errorf("%w: vector component %d is not finite", ErrInvalidInput, i)
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

// encodeVector serializes a vector as JSON for backends without a native
// vector type. A nil vector encodes as SQL NULL-friendly empty string.
func encodeVector(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", nil
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("failed to encode vector: %w", err)
	}
	return string(data), nil
}

// decodeVector parses a JSON-encoded vector.
func decodeVector(data string) ([]float32, error) {
	if data == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(data), &vec); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return vec, nil
}

// cosineDistance computes 1 - cosine similarity between two vectors of the
// same dimension. Mismatched or zero vectors are maximally distant.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
