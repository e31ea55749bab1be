package narrative

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/datastory/internal/qa"
)

// FieldNarrative is the generated summary of one numeric field.
type FieldNarrative struct {
	Field string `json:"field"`
	Text  string `json:"text"`
}

// JoinNarratives renders narratives as "field: text" lines in order.
func JoinNarratives(ns []FieldNarrative) string {
	lines := make([]string, len(ns))
	for i, n := range ns {
		lines[i] = fmt.Sprintf("%s: %s", n.Field, n.Text)
	}
	return strings.Join(lines, "\n")
}

// FieldNarratives asks for one summary per numeric field, grounded on the
// field's yearly trend. Calls run concurrently up to Concurrency; results
// keep field-declaration order. An empty concept falls back to the
// session's topic.
func (o *Orchestrator) FieldNarratives(ctx context.Context, sessionID, concept string) ([]FieldNarrative, error) {
	sess, d, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if concept == "" {
		concept = sess.Topic()
	}
	fields := d.Numeric()
	out := make([]FieldNarrative, len(fields))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency())
	for i, f := range fields {
		g.Go(func() error {
			trend := qa.YearlyTrend(d, f).Answer
			text, err := o.generate(gctx, "field narrative "+f, sessionID, fmt.Sprintf(fieldPrompt, concept, trend), false)
			if err != nil {
				return err
			}
			out[i] = FieldNarrative{Field: f, Text: text}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	o.log().Info("field narratives generated", "session", sessionID, "fields", len(out))
	return out, nil
}

// DataStory combines the field narratives and the correlation summary into
// one story and saves it as StoryFile in the session directory.
func (o *Orchestrator) DataStory(ctx context.Context, sessionID string) (string, error) {
	sess, d, err := o.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	narratives, err := o.FieldNarratives(ctx, sessionID, sess.Topic())
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf(storyPrompt, sess.Topic(), JoinNarratives(narratives), qa.CorrelationText(d))
	story, err := o.generate(ctx, "data story", sessionID, prompt, false)
	if err != nil {
		return "", err
	}
	if err := o.Sessions.WriteFile(sessionID, StoryFile, []byte(story)); err != nil {
		return "", fmt.Errorf("save story: %w", err)
	}
	return story, nil
}
