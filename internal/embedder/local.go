package embedder

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"

	"github.com/dshills/afterimage-mcp/internal/vector"
)

const (
	// LocalDimension is the width of local feature-hashed vectors
	LocalDimension = 384

	// LocalModel names the local hashing scheme. Bump it when the feature
	// extraction changes so cached and stored vectors are not compared
	// across schemes.
	LocalModel = "identifier-hash-v1"
)

var identifierRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// LocalProvider embeds text without any network access by hashing its
// identifiers (and their camelCase / snake_case parts) into a fixed-width
// signed bag of features, then L2-normalizing. Equal text always yields the
// same vector, and texts sharing vocabulary land close together.
type LocalProvider struct {
	cache *Cache
}

// NewLocalProvider creates the offline embedder
func NewLocalProvider(cache *Cache) *LocalProvider {
	return &LocalProvider{cache: cache}
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if emb, ok := l.cache.Get(LocalModel, hash); ok {
		return emb, nil
	}

	emb := &Embedding{
		Vector:    featureVector(req.Text),
		Dimension: LocalDimension,
		Provider:  ProviderLocal,
		Model:     LocalModel,
		Hash:      hash,
	}
	l.cache.Set(LocalModel, hash, emb)
	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      LocalModel,
	}, nil
}

func (l *LocalProvider) Dimension() int   { return LocalDimension }
func (l *LocalProvider) Provider() string { return ProviderLocal }
func (l *LocalProvider) Model() string    { return LocalModel }
func (l *LocalProvider) Close() error     { return nil }

// featureVector hashes every feature of text into a signed bucket
func featureVector(text string) []float32 {
	v := make([]float32, LocalDimension)

	idents := identifierRe.FindAllString(text, -1)
	if len(idents) == 0 {
		// punctuation-only text still gets a stable, non-zero vector
		addFeature(v, strings.TrimSpace(text), 1)
		return vector.Normalize(v)
	}

	for _, ident := range idents {
		lower := strings.ToLower(ident)
		if len(lower) > 1 {
			addFeature(v, lower, 1)
		}
		parts := splitIdentifier(ident)
		if len(parts) < 2 {
			continue
		}
		for _, p := range parts {
			if len(p) > 1 {
				addFeature(v, p, 0.5)
			}
		}
	}
	return vector.Normalize(v)
}

func addFeature(v []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(len(v)))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}

// splitIdentifier breaks parseConfigFile and parse_config_file into their
// lowercase words.
func splitIdentifier(ident string) []string {
	var parts []string
	for _, segment := range strings.Split(ident, "_") {
		if segment == "" {
			continue
		}
		runes := []rune(segment)
		start := 0
		for i := 1; i < len(runes); i++ {
			prev, cur := runes[i-1], runes[i]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower)) {
				parts = append(parts, strings.ToLower(string(runes[start:i])))
				start = i
			}
		}
		parts = append(parts, strings.ToLower(string(runes[start:])))
	}
	return parts
}
