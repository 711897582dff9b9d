package embedding

import (
	"hash/fnv"
	"math"

	"github/itish2003/newsrag/models"
)

// FallbackVector derives a unit-length pseudo-embedding from a stable hash of
// text. The same text always yields the same vector, so cache and search
// behaviour stays reproducible without a provider.
func FallbackVector(text string, dimension int) models.Embedding {
	if dimension <= 0 {
		return models.Embedding{}
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	state := h.Sum64()

	vec := make(models.Embedding, dimension)
	var norm float64
	for i := range vec {
		state = splitmix64(state)
		// top 53 bits -> [0,1) -> [-1,1)
		v := float64(state>>11)/float64(1<<53)*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	inv := 1 / math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
	return vec
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	z := x
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
