// Package pipeline runs an upload end to end: store the raw table, build
// and persist its digest, then run the narrative steps that enrich the
// session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/KaramelBytes/datastory/internal/analysis"
	"github.com/KaramelBytes/datastory/internal/digest"
	"github.com/KaramelBytes/datastory/internal/narrative"
	"github.com/KaramelBytes/datastory/internal/qa"
	"github.com/KaramelBytes/datastory/internal/retrieval"
	"github.com/KaramelBytes/datastory/internal/session"
	"github.com/KaramelBytes/datastory/internal/table"
)

// Steps selects which narrative steps Narrate runs after the digest.
type Steps struct {
	Emotions    bool
	Description bool
	Story       bool
}

// AllSteps enables every narrative step.
func AllSteps() Steps { return Steps{Emotions: true, Description: true, Story: true} }

// Any reports whether at least one step is enabled.
func (s Steps) Any() bool { return s.Emotions || s.Description || s.Story }

// Pipeline wires the engine, stores and narrative collaborators. Narrator
// and Embedder are optional.
type Pipeline struct {
	Engine   *analysis.Engine
	Table    table.Options
	Digests  digest.Store
	Sessions *session.Store
	Narrator *narrative.Orchestrator
	Steps    Steps
	Embedder retrieval.Embedder
	Index    retrieval.BuildOptions
	Logger   *slog.Logger

	wg sync.WaitGroup
}

func (p *Pipeline) log() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}

// DataFile is the stored name of an upload: "data" plus its extension.
func DataFile(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv", ".tsv", ".xlsx":
		return "data" + ext
	}
	return "data.csv"
}

// Ingest stores the upload under a new session and builds its digest
// synchronously. Digest failures are returned as *analysis.DigestError and
// mark the session failed. On success the session stays in processing if
// narrative steps remain, else it is ready. Re-using a session id replaces
// the previous upload along with its digest, index and story.
func (p *Pipeline) Ingest(ctx context.Context, sessionID, description, name string, r io.Reader) (*session.Session, *digest.Digest, error) {
	sess, err := p.Sessions.Create(sessionID, description)
	if err != nil {
		return nil, nil, err
	}
	id := sess.ID
	log := p.log().With("session", id)
	if err := p.reset(ctx, id); err != nil {
		return sess, nil, p.fail(id, err)
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return sess, nil, p.fail(id, fmt.Errorf("read upload: %w", err))
	}
	file := DataFile(name)
	if err := p.Sessions.WriteFile(id, file, raw); err != nil {
		return sess, nil, p.fail(id, err)
	}

	tbl, err := table.Load(filepath.Join(p.Sessions.Dir(id), file), p.Table)
	if err != nil {
		return sess, nil, p.fail(id, &analysis.DigestError{Op: "load", Err: err})
	}
	for _, w := range tbl.Warnings {
		log.Warn("table warning", "warning", w)
	}
	d, err := p.Engine.Build(ctx, tbl)
	if err != nil {
		return sess, nil, p.fail(id, err)
	}
	if err := p.Digests.Save(ctx, id, d); err != nil {
		return sess, nil, p.fail(id, fmt.Errorf("save digest: %w", err))
	}
	log.Info("digest stored", "rows", d.Meta.Rows, "skipped", d.Meta.SkippedRows)

	status := session.StatusReady
	if p.Narrator != nil && p.Steps.Any() {
		status = session.StatusProcessing
	}
	sess, err = p.Sessions.Update(id, func(s *session.Session) error {
		s.Status = status
		s.Error = ""
		return nil
	})
	if err != nil {
		return nil, d, err
	}
	return sess, d, nil
}

// Narrate runs the enabled narrative steps in order: emotions, description,
// story. The first failure stops the run and is recorded on the session;
// the digest is left as is and the session is still marked ready.
func (p *Pipeline) Narrate(ctx context.Context, sessionID string) error {
	if p.Narrator == nil || !p.Steps.Any() {
		return nil
	}
	began := time.Now()
	err := p.narrate(ctx, sessionID)
	_, uerr := p.Sessions.Update(sessionID, func(s *session.Session) error {
		s.Status = session.StatusReady
		if err != nil {
			s.Error = err.Error()
		}
		return nil
	})
	if err != nil {
		p.log().Error("narrative steps failed", "session", sessionID, "err", err)
		return err
	}
	p.log().Info("narrative steps done", "session", sessionID, "elapsed", time.Since(began))
	return uerr
}

func (p *Pipeline) narrate(ctx context.Context, id string) error {
	if p.Steps.Emotions {
		if _, err := p.Narrator.RecommendEmotion(ctx, id); err != nil {
			return err
		}
	}
	if p.Steps.Description {
		if _, err := p.Narrator.ExtractDescription(ctx, id); err != nil {
			return err
		}
	}
	if p.Steps.Story {
		if _, err := p.Narrator.DataStory(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Background runs Narrate on its own goroutine, detached from the caller's
// cancellation but bounded by timeout. Wait blocks until all such runs end.
func (p *Pipeline) Background(ctx context.Context, sessionID string, timeout time.Duration) {
	if p.Narrator == nil || !p.Steps.Any() {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		_ = p.Narrate(ctx, sessionID)
	}()
}

// Wait blocks until background narrative runs have finished.
func (p *Pipeline) Wait() { p.wg.Wait() }

// EnsureIndex returns the session's retrieval index, building it from the
// digest facts when missing or when force is set.
func (p *Pipeline) EnsureIndex(ctx context.Context, sessionID string, force bool) (*retrieval.Index, error) {
	if _, err := p.Sessions.Get(sessionID); err != nil {
		return nil, err
	}
	path := retrieval.IndexPath(p.Sessions.Dir(sessionID))
	if !force {
		idx, err := retrieval.Load(path)
		if err == nil {
			return idx, nil
		}
		if !errors.Is(err, retrieval.ErrNoIndex) {
			return nil, err
		}
	}
	if p.Embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	d, err := p.Digests.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	opts := p.Index
	opts.Force = force
	idx, err := retrieval.BuildIndex(ctx, p.Embedder, path, qa.Facts(d), opts)
	if err != nil {
		return nil, &narrative.GenerationError{Step: "index", SessionID: sessionID, Err: err}
	}
	p.log().Info("retrieval index built", "session", sessionID, "records", len(idx.Records))
	return idx, nil
}

// derived lists the artifacts computed from an upload.
var derived = []string{
	retrieval.FileName, narrative.StoryFile,
	"data.csv", "data.tsv", "data.xlsx",
}

// reset drops everything left by an earlier upload to the same session.
func (p *Pipeline) reset(ctx context.Context, id string) error {
	if err := p.dropDigest(ctx, id); err != nil {
		return err
	}
	for _, name := range derived {
		if err := p.Sessions.RemoveFile(id, name); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) dropDigest(ctx context.Context, id string) error {
	if err := p.Digests.Delete(ctx, id); err != nil && !errors.Is(err, digest.ErrNotFound) {
		return fmt.Errorf("delete digest: %w", err)
	}
	return nil
}

// fail marks the session failed. A failed session never serves a digest.
func (p *Pipeline) fail(id string, err error) error {
	p.log().Error("upload failed", "session", id, "err", err)
	if derr := p.dropDigest(context.Background(), id); derr != nil {
		err = errors.Join(err, derr)
	}
	if _, uerr := p.Sessions.Update(id, func(s *session.Session) error {
		s.Status = session.StatusFailed
		s.Error = err.Error()
		return nil
	}); uerr != nil {
		return errors.Join(err, uerr)
	}
	return err
}
