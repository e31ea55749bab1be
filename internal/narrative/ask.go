package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/KaramelBytes/datastory/internal/qa"
	"github.com/KaramelBytes/datastory/internal/retrieval"
)

// AskFromStat answers a question with the digest facts as context, in fact
// order and cut to MaxContextTokens.
func (o *Orchestrator) AskFromStat(ctx context.Context, sessionID, question string) (string, error) {
	_, d, err := o.load(ctx, sessionID)
	if err != nil {
		return "", err
	}
	step := "ask from stat"
	prompt := fmt.Sprintf(askPrompt, question, o.fit(step, sessionID, bullets(qa.Facts(d))))
	return o.generate(ctx, step, sessionID, prompt, false)
}

// AskFromIndex answers a question with the facts of idx closest to it.
func (o *Orchestrator) AskFromIndex(ctx context.Context, sessionID, question string, idx *retrieval.Index, emb retrieval.Embedder) (string, error) {
	topK := o.TopK
	if topK <= 0 {
		topK = 6
	}
	hits, err := idx.Query(ctx, emb, question, topK, o.MinScore)
	if err != nil {
		return "", &GenerationError{Step: "retrieve", SessionID: sessionID, Err: err}
	}
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Text
	}
	o.log().Debug("retrieved context", "session", sessionID, "hits", len(hits))
	prompt := fmt.Sprintf(askPrompt, question, strings.Join(parts, "\n\n"))
	return o.generate(ctx, "ask from index", sessionID, prompt, false)
}
