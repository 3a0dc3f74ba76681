package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// StaticProvider is a deterministic embedding provider for tests. The vector
// for a given text is derived from its hash, so identical inputs always
// embed identically and different inputs almost always differ. Vectors are
// unit length, making cosine distances meaningful in integration tests.
type StaticProvider struct {
	Dim  int
	Fail error // returned from Embed when non-nil
}

// NewStaticProvider creates a provider emitting dim-wide vectors.
func NewStaticProvider(dim int) *StaticProvider {
	return &StaticProvider{Dim: dim}
}

func (p *StaticProvider) Name() string { return "static" }

func (p *StaticProvider) Dimension() int { return p.Dim }

func (p *StaticProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Fail != nil {
		return nil, p.Fail
	}

	seed := sha256.Sum256([]byte(text))
	vec := make([]float32, p.Dim)
	var norm float64
	for i := range vec {
		// Stretch the 32-byte seed across the vector by rehashing per block.
		block := i / 4
		if block > 0 && i%4 == 0 {
			seed = sha256.Sum256(seed[:])
		}
		bits := binary.BigEndian.Uint64(seed[(i%4)*8 : (i%4)*8+8])
		v := float64(int64(bits))/math.MaxInt64 - 0.5
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}
