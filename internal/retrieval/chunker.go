package retrieval

import (
	"strings"

	"github.com/KaramelBytes/datastory/internal/utils"
)

// ChunkByTokens splits text into chunks of up to maxTokens, with overlap
// tokens between consecutive chunks. Paragraphs are the unit of packing;
// a paragraph larger than maxTokens is broken at sentence ends.
func ChunkByTokens(text string, maxTokens, overlap int) []string {
	if maxTokens <= 0 {
		maxTokens = 400
	}
	if overlap < 0 {
		overlap = 0
	}
	var units []string
	for _, p := range splitParagraphs(text) {
		if utils.CountTokens(p) > maxTokens {
			units = append(units, splitSentences(p)...)
			continue
		}
		units = append(units, p)
	}
	var chunks []string
	var window []string
	curTokens := 0
	for _, u := range units {
		t := utils.CountTokens(u)
		if curTokens+t > maxTokens && len(window) > 0 {
			chunks = append(chunks, strings.Join(window, " "))
			if overlap > 0 {
				window, curTokens = backfillOverlap(window, overlap)
			} else {
				window = window[:0]
				curTokens = 0
			}
		}
		window = append(window, u)
		curTokens += t
	}
	if len(window) > 0 {
		chunks = append(chunks, strings.Join(window, " "))
	}
	return chunks
}

func splitParagraphs(s string) []string {
	raw := strings.Split(s, "\n\n")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// splitSentences breaks s after ". " boundaries, keeping the period.
func splitSentences(s string) []string {
	var out []string
	for {
		i := strings.Index(s, ". ")
		if i < 0 {
			break
		}
		out = append(out, strings.TrimSpace(s[:i+1]))
		s = s[i+2:]
	}
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}

func backfillOverlap(units []string, overlap int) ([]string, int) {
	var out []string
	tokens := 0
	for i := len(units) - 1; i >= 0; i-- {
		t := utils.CountTokens(units[i])
		if tokens+t > overlap && len(out) > 0 {
			break
		}
		out = append([]string{units[i]}, out...)
		tokens += t
	}
	return out, tokens
}
