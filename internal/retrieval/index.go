// Package retrieval embeds digest facts into a small on-disk vector index
// and answers similarity queries against it.
package retrieval

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/datastory/internal/utils"
)

// IndexVersion is bumped when the record layout changes.
const IndexVersion = 2

// FileName is the index document name inside a session directory.
const FileName = "index.json"

// ErrNoIndex is returned when a session has not been indexed yet.
var ErrNoIndex = errors.New("retrieval index not built")

// Record is one embedded chunk of a fact.
type Record struct {
	FactID  int       `json:"fact_id"`
	ChunkID int       `json:"chunk_id"`
	Hash    string    `json:"hash"`
	Text    string    `json:"text"`
	Vector  []float32 `json:"vector"`
}

type Index struct {
	Records []Record  `json:"records"`
	Meta    IndexMeta `json:"meta"`
}

type IndexMeta struct {
	IndexVersion   int       `json:"index_version"`
	EmbedProvider  string    `json:"embed_provider"`
	EmbedModel     string    `json:"embed_model"`
	EmbedDim       int       `json:"embed_dim"`
	ChunkMaxTokens int       `json:"chunk_max_tokens"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// IndexPath returns the index location for a session directory.
func IndexPath(sessionDir string) string {
	return filepath.Join(sessionDir, FileName)
}

// Save writes the index atomically.
func (idx *Index) Save(path string) error {
	if idx == nil {
		return errors.New("nil index")
	}
	b, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	return utils.SafeWriteFile(path, b)
}

// Load reads an index written by Save.
func Load(path string) (*Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoIndex
		}
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return &idx, nil
}

type BuildOptions struct {
	Force          bool
	EmbedProvider  string
	EmbedModel     string
	ChunkMaxTokens int
	// BatchSize is the number of texts per Embed call.
	BatchSize int
	// Concurrency bounds in-flight Embed calls.
	Concurrency int
}

// BuildIndex embeds facts and saves the index at path. Every fact becomes
// one record unless it exceeds ChunkMaxTokens; continuation chunks repeat
// the fact's first sentence so each stays self-contained. Vectors of
// unchanged chunks are reused from the previous index unless Force is set.
func BuildIndex(ctx context.Context, emb Embedder, path string, facts []string, opts BuildOptions) (*Index, error) {
	if opts.ChunkMaxTokens <= 0 {
		opts.ChunkMaxTokens = 400
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	idx := &Index{Meta: IndexMeta{
		IndexVersion:   IndexVersion,
		EmbedProvider:  opts.EmbedProvider,
		EmbedModel:     opts.EmbedModel,
		ChunkMaxTokens: opts.ChunkMaxTokens,
		UpdatedAt:      time.Now().UTC(),
	}}

	reuse := map[string][]float32{}
	if prev, err := Load(path); err == nil && !opts.Force && metaCompatible(prev.Meta, idx.Meta) {
		for _, r := range prev.Records {
			if len(r.Vector) > 0 {
				reuse[r.Hash] = r.Vector
			}
		}
	}

	var pending []int
	for i, fact := range facts {
		chunks := ChunkByTokens(fact, opts.ChunkMaxTokens, 0)
		head := firstSentence(fact)
		for j, text := range chunks {
			if j > 0 && !strings.HasPrefix(text, head) {
				text = head + " " + text
			}
			sum := sha1.Sum([]byte(text))
			r := Record{FactID: i, ChunkID: j, Hash: fmt.Sprintf("%x", sum[:]), Text: text}
			if v, ok := reuse[r.Hash]; ok {
				r.Vector = v
			} else {
				pending = append(pending, len(idx.Records))
			}
			idx.Records = append(idx.Records, r)
		}
	}

	if len(pending) > 0 {
		if emb == nil {
			return nil, errors.New("embedder is required")
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for start := 0; start < len(pending); start += opts.BatchSize {
			batch := pending[start:min(start+opts.BatchSize, len(pending))]
			g.Go(func() error {
				texts := make([]string, len(batch))
				for k, ri := range batch {
					texts[k] = idx.Records[ri].Text
				}
				vecs, err := emb.Embed(gctx, opts.EmbedModel, texts)
				if err != nil {
					return fmt.Errorf("embed: %w", err)
				}
				if len(vecs) != len(batch) {
					return fmt.Errorf("embed: got %d vectors for %d texts", len(vecs), len(batch))
				}
				for k, ri := range batch {
					idx.Records[ri].Vector = vecs[k]
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	for _, r := range idx.Records {
		if len(r.Vector) > 0 {
			idx.Meta.EmbedDim = len(r.Vector)
			break
		}
	}
	if err := idx.Save(path); err != nil {
		return nil, err
	}
	return idx, nil
}

// metaCompatible reports whether vectors of prev can be reused under cur.
func metaCompatible(prev, cur IndexMeta) bool {
	return prev.IndexVersion == cur.IndexVersion &&
		prev.EmbedProvider == cur.EmbedProvider &&
		prev.EmbedModel == cur.EmbedModel &&
		prev.ChunkMaxTokens == cur.ChunkMaxTokens
}

func firstSentence(s string) string {
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}

// CosineSim returns the cosine similarity of a and b, or 0 when dimensions
// mismatch.
func CosineSim(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Hit is a scored search result.
type Hit struct {
	Record
	Score float64 `json:"score"`
}

// Search returns the top-k records scoring at least minScore, best first.
// Equal scores keep index order.
func (idx *Index) Search(query []float32, topK int, minScore float64) []Hit {
	hits := make([]Hit, 0, len(idx.Records))
	for _, r := range idx.Records {
		if s := CosineSim(query, r.Vector); s >= minScore {
			hits = append(hits, Hit{Record: r, Score: s})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// Query embeds text with the index's model and searches for it.
func (idx *Index) Query(ctx context.Context, emb Embedder, text string, topK int, minScore float64) ([]Hit, error) {
	vecs, err := emb.Embed(ctx, idx.Meta.EmbedModel, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	return idx.Search(vecs[0], topK, minScore), nil
}
