package narrative

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/datastory/internal/ai"
	"github.com/KaramelBytes/datastory/internal/analysis"
	"github.com/KaramelBytes/datastory/internal/digest"
	"github.com/KaramelBytes/datastory/internal/retrieval"
	"github.com/KaramelBytes/datastory/internal/session"
	"github.com/KaramelBytes/datastory/internal/table"
)

// scripted answers every prompt through reply and records what it was sent.
type scripted struct {
	mu       sync.Mutex
	prompts  []string
	inFlight atomic.Int32
	peak     atomic.Int32
	reply    func(req ai.GenerateRequest) (string, error)
}

func (s *scripted) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.prompts = append(s.prompts, req.Messages[0].Content)
	s.mu.Unlock()
	text, err := s.reply(req)
	if err != nil {
		return nil, err
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: text}}}}, nil
}

func (s *scripted) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func setup(t *testing.T, rt ai.Runtime) *Orchestrator {
	t.Helper()
	root := t.TempDir()
	sessions := session.NewStore(root, 0)
	digests := digest.NewFileStore(root)

	tbl, err := table.FromRecords("weather.csv", []string{"date", "meantemp", "humidity", "wind"}, [][]string{
		{"2013-01-01", "10", "80", "3"},
		{"2013-06-01", "30", "40", "5"},
		{"2014-01-01", "12", "75", "2"},
		{"2014-06-01", "32", "35", "6"},
	}, table.DefaultOptions())
	require.NoError(t, err)
	d, err := analysis.NewEngine(analysis.DefaultOptions(), nil).Build(context.Background(), tbl)
	require.NoError(t, err)

	_, err = sessions.Create("s1", "Daily climate of Delhi")
	require.NoError(t, err)
	require.NoError(t, digests.Save(context.Background(), "s1", d))

	return &Orchestrator{Runtime: rt, Model: "m", Digests: digests, Sessions: sessions, Concurrency: 2}
}

func TestFieldNarrativesKeepFieldOrder(t *testing.T) {
	rt := &scripted{reply: func(req ai.GenerateRequest) (string, error) {
		p := req.Messages[0].Content
		for _, f := range []string{"meantemp", "humidity", "wind"} {
			if strings.Contains(p, "the average "+f+" is") {
				return "<think>hmm</think>about " + f, nil
			}
		}
		return "", errors.New("unexpected prompt")
	}}
	o := setup(t, rt)

	ns, err := o.FieldNarratives(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, []FieldNarrative{
		{Field: "meantemp", Text: "about meantemp"},
		{Field: "humidity", Text: "about humidity"},
		{Field: "wind", Text: "about wind"},
	}, ns)
	assert.LessOrEqual(t, rt.peak.Load(), int32(2))
	assert.Contains(t, rt.sent()[0], "The dataset is about Daily climate of Delhi.")
	assert.Equal(t, "meantemp: about meantemp\nhumidity: about humidity\nwind: about wind", JoinNarratives(ns))
}

func TestDataStoryWritesArtifact(t *testing.T) {
	rt := &scripted{reply: func(req ai.GenerateRequest) (string, error) {
		if strings.Contains(req.Messages[0].Content, "Summary of each field") {
			return "the story", nil
		}
		return "field text", nil
	}}
	o := setup(t, rt)
	_, err := o.Sessions.Update("s1", func(s *session.Session) error { s.CoreConcept = "Delhi weather"; return nil })
	require.NoError(t, err)

	story, err := o.DataStory(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "the story", story)

	b, err := o.Sessions.ReadFile("s1", StoryFile)
	require.NoError(t, err)
	assert.Equal(t, "the story", string(b))

	prompts := rt.sent()
	require.Len(t, prompts, 4)
	last := prompts[3]
	assert.Contains(t, last, "The dataset is about Delhi weather.")
	assert.Contains(t, last, "meantemp: field text\nhumidity: field text\nwind: field text")
	assert.Contains(t, last, "The correlation between each fields are as follow, meantemp and humidity is")
}

func TestGenerationFailureIsTyped(t *testing.T) {
	down := &ai.UnreachableError{Host: "http://127.0.0.1:1", Err: errors.New("connection refused")}
	o := setup(t, &scripted{reply: func(ai.GenerateRequest) (string, error) { return "", down }})

	_, err := o.DataStory(context.Background(), "s1")
	var gen *GenerationError
	require.ErrorAs(t, err, &gen)
	assert.Equal(t, "s1", gen.SessionID)
	assert.ErrorIs(t, err, down)

	_, err = o.Sessions.ReadFile("s1", StoryFile)
	assert.ErrorIs(t, err, session.ErrNotFound)
	d, err := o.Digests.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.NoError(t, d.Validate(), "digest untouched by generation failure")

	o.Runtime = &scripted{reply: func(ai.GenerateRequest) (string, error) { return "  ", nil }}
	_, err = o.AskFromStat(context.Background(), "s1", "q?")
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestTone(t *testing.T) {
	assert.Contains(t, Tone(1), "Low")
	assert.Contains(t, Tone(3), "Low")
	assert.Contains(t, Tone(4), "Medium")
	assert.Contains(t, Tone(6), "Medium")
	assert.Contains(t, Tone(7), "High")
	assert.Contains(t, Tone(10), "High")
}

func TestAffective(t *testing.T) {
	rt := &scripted{reply: func(ai.GenerateRequest) (string, error) { return "a paragraph", nil }}
	o := setup(t, rt)

	_, err := o.Affective(context.Background(), "s1", Agency{Emotion: "joy", Intensity: 11, WordCount: 0})
	require.Error(t, err)
	assert.Empty(t, rt.sent(), "invalid agency makes no call")

	out, err := o.Affective(context.Background(), "s1", Agency{Emotion: "awe", Intensity: 5, WordCount: 120, Purpose: "inform"})
	require.NoError(t, err)
	assert.Equal(t, "a paragraph", out)
	p := rt.sent()[0]
	assert.Contains(t, p, "Emotion to convey: awe")
	assert.Contains(t, p, "Target length: 120 words")
	assert.Contains(t, p, Tone(5))
	assert.Contains(t, p, "Q: What is the time period where the data was captured?")
}

func TestRecommendEmotionStoresResult(t *testing.T) {
	rt := &scripted{reply: func(req ai.GenerateRequest) (string, error) {
		assert.True(t, req.JSON)
		if strings.Contains(req.Messages[0].Content, "is_there_inappropriate_emotion") {
			return `{"is_there_inappropriate_emotion": false, "inappropriate_emotion": "", "reason": ""}`, nil
		}
		return "```json\n{\"emotion\": \"Awe\", \"reason\": \"big numbers\"}\n```", nil
	}}
	o := setup(t, rt)

	res, err := o.RecommendEmotion(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "awe", res.Recommended.Emotion)
	assert.False(t, res.Inappropriate.Present)

	sess, err := o.Sessions.Get("s1")
	require.NoError(t, err)
	require.NotNil(t, sess.Emotions)
	assert.Equal(t, "big numbers", sess.Emotions.Recommended.Reason)
	assert.Contains(t, rt.sent()[0], "The dataset contains the columns: date (temporal), meantemp (numeric)")
}

func TestExtractDescription(t *testing.T) {
	rt := &scripted{reply: func(req ai.GenerateRequest) (string, error) {
		if strings.Contains(req.Messages[0].Content, "core concept") {
			return `{"core_concept": " Delhi climate "}`, nil
		}
		return `{"is_there_any_instruction": true, "instruction": "hopeful tone"}`, nil
	}}
	o := setup(t, rt)

	desc, err := o.ExtractDescription(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, &Description{CoreConcept: "Delhi climate", HasInstruction: true, Instruction: "hopeful tone"}, desc)

	sess, err := o.Sessions.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "Delhi climate", sess.Topic())
	assert.Equal(t, "hopeful tone", sess.Instruction)

	o.Runtime = &scripted{reply: func(ai.GenerateRequest) (string, error) { return "not json", nil }}
	_, err = o.ExtractDescription(context.Background(), "s1")
	var gen *GenerationError
	assert.ErrorAs(t, err, &gen)
}

type axisEmbedder struct{}

func (axisEmbedder) Embed(_ context.Context, _ string, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		v := make([]float32, 2)
		if strings.Contains(s, "correlation") {
			v[0] = 1
		} else {
			v[1] = 1
		}
		out[i] = v
	}
	return out, nil
}

func TestAskFromStatAndIndex(t *testing.T) {
	rt := &scripted{reply: func(ai.GenerateRequest) (string, error) { return "answer", nil }}
	o := setup(t, rt)

	got, err := o.AskFromStat(context.Background(), "s1", "How humid is it?")
	require.NoError(t, err)
	assert.Equal(t, "answer", got)
	assert.Contains(t, rt.sent()[0], "Question: How humid is it?")
	assert.Contains(t, rt.sent()[0], "\n- The dataset includes the following columns: date, meantemp, humidity, wind.")

	facts := []string{"The correlation between each fields are as follow, a and b is 1.", "In 2013 it rained."}
	idx, err := retrieval.BuildIndex(context.Background(), axisEmbedder{}, retrieval.IndexPath(o.Sessions.Dir("s1")), facts, retrieval.BuildOptions{EmbedModel: "e"})
	require.NoError(t, err)

	o.TopK = 1
	_, err = o.AskFromIndex(context.Background(), "s1", "which correlation is strongest?", idx, axisEmbedder{})
	require.NoError(t, err)
	last := rt.sent()[1]
	assert.Contains(t, last, facts[0])
	assert.NotContains(t, last, facts[1])
}

func TestAskFromStatRespectsContextBudget(t *testing.T) {
	rt := &scripted{reply: func(ai.GenerateRequest) (string, error) { return "answer", nil }}
	o := setup(t, rt)

	_, err := o.AskFromStat(context.Background(), "s1", "q")
	require.NoError(t, err)
	assert.Contains(t, rt.sent()[0], "- Timespan | Date | Time period")

	o.MaxContextTokens = 30
	_, err = o.AskFromStat(context.Background(), "s1", "q")
	require.NoError(t, err)
	prompt := rt.sent()[1]
	assert.Contains(t, prompt, "- The dataset includes the following columns: date, meantemp, humidity, wind. These fields represent the data.\n")
	assert.NotContains(t, prompt, "Timespan", "facts past the budget are dropped whole")
}
