package narrative

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/datastory/internal/qa"
	"github.com/KaramelBytes/datastory/internal/session"
)

// Emotions a narrative may be recommended to evoke.
var (
	PositiveEmotions = []string{"empathy", "surprise", "joy", "amusement", "contentment", "tenderness", "excitement"}
	NegativeEmotions = []string{"seriousness", "awe", "sadness", "anger", "fear", "disgust"}
)

// Description is what ExtractDescription reads out of the user's text.
type Description struct {
	CoreConcept    string `json:"core_concept"`
	HasInstruction bool   `json:"is_there_any_instruction"`
	Instruction    string `json:"instruction"`
}

// RecommendEmotion asks, in parallel, for the best emotion and for any
// emotion that would be inappropriate, then stores both on the session.
func (o *Orchestrator) RecommendEmotion(ctx context.Context, sessionID string) (*session.Emotions, error) {
	sess, d, err := o.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	fields := qa.FieldNames(d)
	var res session.Emotions

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prompt := fmt.Sprintf(recommendPrompt, sess.Description, fields,
			strings.Join(PositiveEmotions, ", "), strings.Join(NegativeEmotions, ", "))
		return o.generateJSON(gctx, "recommend emotion", sessionID, prompt, &res.Recommended)
	})
	g.Go(func() error {
		prompt := fmt.Sprintf(cautionPrompt, sess.Description, fields)
		return o.generateJSON(gctx, "inappropriate emotion", sessionID, prompt, &res.Inappropriate)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.Recommended.Emotion = strings.ToLower(strings.TrimSpace(res.Recommended.Emotion))
	if !slices.Contains(PositiveEmotions, res.Recommended.Emotion) && !slices.Contains(NegativeEmotions, res.Recommended.Emotion) {
		o.log().Warn("recommended emotion outside the known lists", "session", sessionID, "emotion", res.Recommended.Emotion)
	}
	if _, err := o.Sessions.Update(sessionID, func(s *session.Session) error {
		s.Emotions = &res
		return nil
	}); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExtractDescription derives the core concept and any storytelling
// instruction from the session description and stores them on the session.
func (o *Orchestrator) ExtractDescription(ctx context.Context, sessionID string) (*Description, error) {
	sess, err := o.Sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	var out Description

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.generateJSON(gctx, "core concept", sessionID, fmt.Sprintf(conceptPrompt, sess.Description), &out)
	})
	var inst Description
	g.Go(func() error {
		return o.generateJSON(gctx, "instruction", sessionID, fmt.Sprintf(instructionPrompt, sess.Description), &inst)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out.HasInstruction = inst.HasInstruction
	out.Instruction = ""
	if inst.HasInstruction {
		out.Instruction = strings.TrimSpace(inst.Instruction)
	}
	out.CoreConcept = strings.TrimSpace(out.CoreConcept)

	if _, err := o.Sessions.Update(sessionID, func(s *session.Session) error {
		s.CoreConcept = out.CoreConcept
		s.Instruction = out.Instruction
		return nil
	}); err != nil {
		return nil, err
	}
	return &out, nil
}
