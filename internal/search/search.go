package search

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"

	"clip-catalog/internal/database"
)

const (
	// Dimensions is the length of every description vector.
	Dimensions = 384

	// MinScore is the lowest cosine similarity returned as a match.
	MinScore = 0.1

	// DefaultLimit applies when a caller asks for no limit.
	DefaultLimit = 20
)

// Result is one ranked match.
type Result struct {
	ClipID string  `json:"clipId"`
	Score  float32 `json:"score"`
}

// EmbeddingStore reads stored description vectors.
type EmbeddingStore interface {
	GetAllEmbeddings(ctx context.Context) ([]database.Embedding, error)
}

// DescriptionStore writes descriptions and their vectors.
type DescriptionStore interface {
	UpdateDescription(ctx context.Context, id, description string) error
	UpsertEmbedding(ctx context.Context, clipID string, vector []byte, modelVersion string) error
}

// Vectorize maps text to a normalised hashed bag of words. Each word adds 1
// to its hash bucket and each adjacent byte pair within it adds 0.5, so near
// spellings still overlap.
func Vectorize(text string) []float32 {
	vec := make([]float32, Dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		var h uint64
		for i := 0; i < len(word); i++ {
			h = h*31 + uint64(word[i])
		}
		vec[h%Dimensions] += 1

		for i := 0; i+1 < len(word); i++ {
			h2 := uint64(word[i])*31 + uint64(word[i+1])
			vec[h2%Dimensions] += 0.5
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// Search ranks every stored embedding against query and returns up to limit
// matches scoring above MinScore, best first.
func Search(ctx context.Context, store EmbeddingStore, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := Vectorize(query)

	embeddings, err := store.GetAllEmbeddings(ctx)
	if err != nil {
		return nil, err
	}

	results := []Result{}
	for _, e := range embeddings {
		score := Cosine(q, database.DecodeFloat32s(e.Vector))
		if score > MinScore {
			results = append(results, Result{ClipID: e.ClipID, Score: score})
		}
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Describe stores a clip's description and re-embeds it. Clearing a
// description leaves the previous vector in place.
func Describe(ctx context.Context, store DescriptionStore, clipID, description string) error {
	if err := store.UpdateDescription(ctx, clipID, description); err != nil {
		return err
	}
	if strings.TrimSpace(description) == "" {
		return nil
	}
	vec := database.EncodeFloat32s(Vectorize(description))
	return store.UpsertEmbedding(ctx, clipID, vec, database.DefaultEmbeddingModel)
}
