// Package vector holds the float32 embedding helpers shared by storage,
// scoring and clustering.
package vector

import (
	"encoding/binary"
	"math"
)

// Serialize converts a float32 slice to a little-endian byte blob
func Serialize(v []float32) []byte {
	blob := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(f))
	}
	return blob
}

// Deserialize converts a little-endian blob back to a float32 slice.
// Trailing bytes that do not form a whole float are ignored.
func Deserialize(blob []byte) []float32 {
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v
}

// Cosine computes the cosine similarity of a and b. ok is false when the
// vectors differ in length, are empty, or either has zero norm.
func Cosine(a, b []float32) (sim float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// Similarity is Cosine clamped to [0,1]; unusable vectors score 0
func Similarity(a, b []float32) float64 {
	sim, ok := Cosine(a, b)
	if !ok || sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// Normalize scales v to unit length. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f / norm
	}
	return out
}
