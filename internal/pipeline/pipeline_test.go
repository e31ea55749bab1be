package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/datastory/internal/ai"
	"github.com/KaramelBytes/datastory/internal/analysis"
	"github.com/KaramelBytes/datastory/internal/dates"
	"github.com/KaramelBytes/datastory/internal/digest"
	"github.com/KaramelBytes/datastory/internal/narrative"
	"github.com/KaramelBytes/datastory/internal/session"
	"github.com/KaramelBytes/datastory/internal/table"
)

const weather = `date,meantemp,humidity
2013-01-01,10,80
2013-02-01,12,78
2014-01-01,11,70
not a date,99,1
`

type runtimeFunc func(ai.GenerateRequest) (string, error)

func (f runtimeFunc) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	text, err := f(req)
	if err != nil {
		return nil, err
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Content: text}}}}, nil
}

// happy answers JSON prompts with valid objects and everything else with prose.
func happy(req ai.GenerateRequest) (string, error) {
	p := req.Messages[0].Content
	switch {
	case strings.Contains(p, "is_there_inappropriate_emotion"):
		return `{"is_there_inappropriate_emotion": false}`, nil
	case strings.Contains(p, `{"emotion"`):
		return `{"emotion": "awe", "reason": "r"}`, nil
	case strings.Contains(p, `{"core_concept"`):
		return `{"core_concept": "weather"}`, nil
	case strings.Contains(p, "is_there_any_instruction"):
		return `{"is_there_any_instruction": false, "instruction": ""}`, nil
	}
	return "prose", nil
}

func newPipeline(t *testing.T, rt ai.Runtime) *Pipeline {
	t.Helper()
	root := t.TempDir()
	sessions := session.NewStore(root, 0)
	digests := digest.NewFileStore(root)
	p := &Pipeline{
		Engine:   analysis.NewEngine(analysis.DefaultOptions(), nil),
		Table:    table.DefaultOptions(),
		Digests:  digests,
		Sessions: sessions,
	}
	if rt != nil {
		p.Narrator = &narrative.Orchestrator{Runtime: rt, Digests: digests, Sessions: sessions, Concurrency: 2}
		p.Steps = AllSteps()
	}
	return p
}

func TestIngestBuildsDigest(t *testing.T) {
	p := newPipeline(t, nil)
	sess, d, err := p.Ingest(context.Background(), "", "weather", "upload.csv", strings.NewReader(weather))
	require.NoError(t, err)
	assert.Equal(t, session.StatusReady, sess.Status)
	assert.Equal(t, 1, d.Meta.SkippedRows)

	stored, err := p.Digests.Load(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ByYear, stored.ByYear)

	raw, err := p.Sessions.ReadFile(sess.ID, "data.csv")
	require.NoError(t, err)
	assert.Equal(t, weather, string(raw))
}

func TestIngestWithoutDateFieldFails(t *testing.T) {
	p := newPipeline(t, nil)
	_, _, err := p.Ingest(context.Background(), "s1", "d", "x.csv", strings.NewReader("when,v\n2013-01-01,1\n"))
	var de *analysis.DigestError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, dates.ErrNoDateField)

	sess, err := p.Sessions.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, sess.Status)
	assert.Contains(t, sess.Error, "no date field")
	_, err = p.Digests.Load(context.Background(), "s1")
	assert.ErrorIs(t, err, digest.ErrNotFound)
}

func TestNarrateRunsStepsInOrder(t *testing.T) {
	p := newPipeline(t, runtimeFunc(happy))
	sess, _, err := p.Ingest(context.Background(), "s1", "Delhi weather", "w.csv", strings.NewReader(weather))
	require.NoError(t, err)
	assert.Equal(t, session.StatusProcessing, sess.Status)

	p.Background(context.Background(), "s1", 0)
	p.Wait()

	sess, err = p.Sessions.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusReady, sess.Status)
	assert.Empty(t, sess.Error)
	assert.Equal(t, "weather", sess.CoreConcept)
	require.NotNil(t, sess.Emotions)
	story, err := p.Sessions.ReadFile("s1", narrative.StoryFile)
	require.NoError(t, err)
	assert.Equal(t, "prose", string(story))
}

func TestNarrateFailureKeepsDigest(t *testing.T) {
	var calls atomic.Int32
	p := newPipeline(t, runtimeFunc(func(ai.GenerateRequest) (string, error) {
		calls.Add(1)
		return "", errors.New("model offline")
	}))
	_, _, err := p.Ingest(context.Background(), "s1", "d", "w.csv", strings.NewReader(weather))
	require.NoError(t, err)

	err = p.Narrate(context.Background(), "s1")
	var gen *narrative.GenerationError
	require.ErrorAs(t, err, &gen)

	sess, err := p.Sessions.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusReady, sess.Status)
	assert.Contains(t, sess.Error, "model offline")
	assert.Nil(t, sess.Emotions)
	assert.LessOrEqual(t, calls.Load(), int32(2), "stops after the first failing step")

	d, err := p.Digests.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.NoError(t, d.Validate())
}

type countingEmbedder struct{ calls atomic.Int32 }

func (e *countingEmbedder) Embed(_ context.Context, _ string, inputs []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		out[i] = []float32{float32(len(s)), 1}
	}
	return out, nil
}

func TestEnsureIndex(t *testing.T) {
	p := newPipeline(t, nil)
	emb := &countingEmbedder{}
	p.Embedder = emb
	p.Index.EmbedModel = "e"

	_, d, err := p.Ingest(context.Background(), "s1", "d", "w.csv", strings.NewReader(weather))
	require.NoError(t, err)

	idx, err := p.EnsureIndex(context.Background(), "s1", false)
	require.NoError(t, err)
	assert.Len(t, idx.Records, 10, "inventory, range, two fields, correlation, three months, two years")
	assert.Equal(t, len(d.ByMonth)+len(d.ByYear)+5, len(idx.Records))
	first := emb.calls.Load()

	_, err = p.EnsureIndex(context.Background(), "s1", false)
	require.NoError(t, err)
	assert.Equal(t, first, emb.calls.Load(), "existing index is reused")

	_, err = p.EnsureIndex(context.Background(), "missing", false)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestReingestReplacesDerivedArtifacts(t *testing.T) {
	p := newPipeline(t, nil)
	p.Embedder = &countingEmbedder{}
	ctx := context.Background()

	_, _, err := p.Ingest(ctx, "s1", "d", "w.csv", strings.NewReader(weather))
	require.NoError(t, err)
	_, err = p.EnsureIndex(ctx, "s1", false)
	require.NoError(t, err)
	require.NoError(t, p.Sessions.WriteFile("s1", narrative.StoryFile, []byte("old story")))

	_, d, err := p.Ingest(ctx, "s1", "d", "p.csv", strings.NewReader("date,pressure\n2013-01-01,1000\n2013-02-01,1010\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "pressure"}, d.Fields.Names())

	_, err = p.Sessions.ReadFile("s1", narrative.StoryFile)
	assert.ErrorIs(t, err, session.ErrNotFound)

	idx, err := p.EnsureIndex(ctx, "s1", false)
	require.NoError(t, err)
	assert.Equal(t, "The dataset includes the following columns: date, pressure. These fields represent the data.", idx.Records[0].Text)
}

func TestFailedReingestDropsPreviousDigest(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	_, _, err := p.Ingest(ctx, "s1", "d", "w.csv", strings.NewReader(weather))
	require.NoError(t, err)
	_, _, err = p.Ingest(ctx, "s1", "d", "x.csv", strings.NewReader("when,v\n2013-01-01,1\n"))
	require.ErrorIs(t, err, dates.ErrNoDateField)

	sess, err := p.Sessions.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, sess.Status)
	_, err = p.Digests.Load(ctx, "s1")
	assert.ErrorIs(t, err, digest.ErrNotFound)
	_, err = p.Sessions.ReadFile("s1", "data.csv")
	require.NoError(t, err, "the failed upload itself is kept")
}

func TestDataFile(t *testing.T) {
	assert.Equal(t, "data.csv", DataFile("Upload.CSV"))
	assert.Equal(t, "data.xlsx", DataFile("book.xlsx"))
	assert.Equal(t, "data.tsv", DataFile("a.tsv"))
	assert.Equal(t, "data.csv", DataFile("noext"))
}
