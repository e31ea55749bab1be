package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/datastory/internal/qa"
)

// Agency is the reader-facing framing of an affective narrative.
type Agency struct {
	Emotion   string `json:"emotion"`
	Intensity int    `json:"intensity_level"`
	WordCount int    `json:"word_count"`
	Purpose   string `json:"purpose"`
}

// Validate checks the agency before any model call is made.
func (a Agency) Validate() error {
	var errs []error
	if strings.TrimSpace(a.Emotion) == "" {
		errs = append(errs, errors.New("emotion is required"))
	}
	if a.Intensity < 1 || a.Intensity > 10 {
		errs = append(errs, fmt.Errorf("intensity_level must be between 1 and 10, got %d", a.Intensity))
	}
	if a.WordCount <= 0 {
		errs = append(errs, errors.New("word_count must be positive"))
	}
	return errors.Join(errs...)
}

// Tone describes how strongly the emotion should come through.
func Tone(intensity int) string {
	switch {
	case intensity <= 3:
		return "Low emotion intensity. Use subtle emotional cues."
	case intensity <= 6:
		return "Medium emotion intensity. Use emotionally descriptive language."
	default:
		return "High emotion intensity. Use dramatic and vivid emotional phrasing."
	}
}

// Affective writes a single paragraph about the dataset in the requested
// emotion, grounded on the digest's question/answer pairs.
func (o *Orchestrator) Affective(ctx context.Context, sessionID string, a Agency) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	sess, d, err := o.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	description := sess.Description
	if sess.Instruction != "" {
		description += " (" + sess.Instruction + ")"
	}
	prompt := fmt.Sprintf(affectivePrompt, a.Purpose, a.Emotion, a.WordCount, description,
		Tone(a.Intensity), o.fit("affective narrative", sessionID, qa.Render(qa.Generate(d))))
	return o.generate(ctx, "affective narrative", sessionID, prompt, false)
}
