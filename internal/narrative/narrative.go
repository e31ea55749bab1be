// Package narrative turns a session's digest into model-written text: per
// field summaries, a data story, affective narratives, emotion
// recommendations and answers to free-form questions.
//
// Generation failures are reported as *GenerationError and never touch the
// persisted digest.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KaramelBytes/datastory/internal/ai"
	"github.com/KaramelBytes/datastory/internal/digest"
	"github.com/KaramelBytes/datastory/internal/session"
	"github.com/KaramelBytes/datastory/internal/utils"
)

// StoryFile is the artifact DataStory writes into the session directory.
const StoryFile = "story.txt"

// GenerationError reports a failed call to the text-generation runtime.
type GenerationError struct {
	Step      string
	SessionID string
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation: %s (session %s): %v", e.Step, e.SessionID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ErrEmptyReply is wrapped when the model answers with nothing usable.
var ErrEmptyReply = errors.New("empty reply")

// Orchestrator sequences generation calls for a session. Runtime, Digests
// and Sessions are required.
type Orchestrator struct {
	Runtime     ai.Runtime
	Model       string
	MaxTokens   int
	Temperature float64
	Digests     digest.Store
	Sessions    *session.Store
	Logger      *slog.Logger
	// Concurrency bounds simultaneous per-field calls. Values below 1 mean 1.
	Concurrency int
	// TopK and MinScore tune retrieval for AskFromIndex.
	TopK     int
	MinScore float64
	// MaxContextTokens caps the digest context placed in a prompt. Values
	// below 1 use DefaultContextTokens.
	MaxContextTokens int
}

// DefaultContextTokens is the context budget when none is configured.
const DefaultContextTokens = 6000

func (o *Orchestrator) log() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// load fetches the live session and its digest.
func (o *Orchestrator) load(ctx context.Context, sessionID string) (*session.Session, *digest.Digest, error) {
	sess, err := o.Sessions.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	d, err := o.Digests.Load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return sess, d, nil
}

// generate sends a single-turn prompt and returns the cleaned reply.
func (o *Orchestrator) generate(ctx context.Context, step, sessionID, prompt string, jsonOut bool) (string, error) {
	began := time.Now()
	resp, err := o.Runtime.Generate(ctx, ai.GenerateRequest{
		Model:       o.Model,
		Messages:    []ai.Message{{Role: "user", Content: prompt}},
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
		JSON:        jsonOut,
	})
	if err != nil {
		return "", &GenerationError{Step: step, SessionID: sessionID, Err: err}
	}
	text := resp.Text()
	if text == "" {
		return "", &GenerationError{Step: step, SessionID: sessionID, Err: ErrEmptyReply}
	}
	o.log().Debug("generated", "step", step, "session", sessionID,
		"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens,
		"elapsed", time.Since(began))
	return text, nil
}

// generateJSON is generate followed by decoding the JSON object in the reply.
func (o *Orchestrator) generateJSON(ctx context.Context, step, sessionID, prompt string, v any) error {
	text, err := o.generate(ctx, step, sessionID, prompt, true)
	if err != nil {
		return err
	}
	if err := ai.DecodeJSON(text, v); err != nil {
		return &GenerationError{Step: step, SessionID: sessionID, Err: err}
	}
	return nil
}

// fit trims a line-oriented context block to the token budget.
func (o *Orchestrator) fit(step, sessionID, block string) string {
	budget := o.MaxContextTokens
	if budget <= 0 {
		budget = DefaultContextTokens
	}
	out := utils.TruncateToTokenLimit(block, budget)
	if len(out) < len(block) {
		o.log().Warn("context truncated", "step", step, "session", sessionID,
			"tokens", utils.CountTokens(block), "budget", budget)
	}
	return out
}

func (o *Orchestrator) concurrency() int {
	if o.Concurrency < 1 {
		return 1
	}
	return o.Concurrency
}
