package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/KaramelBytes/datastory/internal/ai"
	"github.com/KaramelBytes/datastory/internal/analysis"
	"github.com/KaramelBytes/datastory/internal/digest"
	"github.com/KaramelBytes/datastory/internal/logging"
	"github.com/KaramelBytes/datastory/internal/narrative"
	"github.com/KaramelBytes/datastory/internal/pipeline"
	"github.com/KaramelBytes/datastory/internal/retrieval"
	"github.com/KaramelBytes/datastory/internal/session"
	"github.com/KaramelBytes/datastory/internal/table"
)

// app bundles the collaborators built from the loaded configuration.
type app struct {
	pipe  *pipeline.Pipeline
	close func() error
}

func (a *app) Close() error {
	if a.close == nil {
		return nil
	}
	return a.close()
}

func requireConfig() error {
	if cfg == nil {
		return errors.New("configuration not loaded")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return nil
}

func engineOptions() analysis.Options {
	opt := analysis.DefaultOptions()
	opt.Resolver = cfg.DateResolver()
	opt.Precision = cfg.Precision
	if cfg.Workers > 0 {
		opt.Workers = cfg.Workers
	}
	opt.ZeroFillNulls = cfg.ZeroFillNulls
	return opt
}

func tableOptions() table.Options {
	opt := table.DefaultOptions()
	opt.Resolver = cfg.DateResolver()
	return opt
}

func aiConfig() ai.Config {
	return ai.Config{
		HTTPTimeout: time.Duration(cfg.HTTPTimeoutSec) * time.Second,
		RetryMax:    cfg.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Host:        cfg.OllamaHost,
	}
}

// openDigestStore returns the configured digest backend and its closer.
func openDigestStore() (digest.Store, func() error, error) {
	switch strings.ToLower(cfg.StoreBackend) {
	case "", "file":
		return digest.NewFileStore(cfg.SessionsDir), func() error { return nil }, nil
	case "sqlite":
		s, err := digest.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store_backend %q (use file or sqlite)", cfg.StoreBackend)
}

// newApp wires stores, engine and, when withAI is set, the generation and
// embedding runtimes.
func newApp(withAI bool) (*app, error) {
	if err := requireConfig(); err != nil {
		return nil, err
	}
	digests, closer, err := openDigestStore()
	if err != nil {
		return nil, err
	}
	sessions := session.NewStore(cfg.SessionsDir, cfg.SessionTTL())
	p := &pipeline.Pipeline{
		Engine:   analysis.NewEngine(engineOptions(), logger),
		Table:    tableOptions(),
		Digests:  digests,
		Sessions: sessions,
		Logger:   logger,
		Index: retrieval.BuildOptions{
			EmbedProvider: cfg.EmbeddingProvider,
			EmbedModel:    cfg.EmbeddingModel,
		},
	}
	if withAI {
		rt, err := ai.NewRuntime(cfg.GenerationProvider, aiConfig())
		if err != nil {
			_ = closer()
			return nil, err
		}
		emb, err := ai.NewEmbedder(cfg.EmbeddingProvider, aiConfig())
		if err != nil {
			_ = closer()
			return nil, err
		}
		p.Embedder = emb
		p.Narrator = &narrative.Orchestrator{
			Runtime:     rt,
			Model:       cfg.GenerationModel,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Digests:     digests,
			Sessions:    sessions,
			Logger:      logger,
			Concurrency: cfg.NarrativeConcurrency,
			TopK:        cfg.RetrievalTopK,
			MinScore:    cfg.RetrievalMinScore,

			MaxContextTokens: cfg.MaxContextTokens,
		}
		p.Steps = pipeline.AllSteps()
	}
	return &app{pipe: p, close: closer}, nil
}

// loadDigest reads a digest from a stat.json path or, failing that, from
// the session store.
func (a *app) loadDigest(ctx context.Context, ref string) (*digest.Digest, error) {
	if strings.HasSuffix(strings.ToLower(ref), ".json") {
		b, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("read digest: %w", err)
		}
		return digest.Decode(b)
	}
	return a.pipe.Digests.Load(ctx, ref)
}

// writeOut writes s to path, or to w when path is empty.
func writeOut(w io.Writer, path, s string) error {
	if path == "" {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", path)
	return nil
}
