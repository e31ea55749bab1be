package narrative

import (
	"fmt"
	"strings"
)

const fieldPrompt = `You are a data storyteller. Write a short summary of the statistics below.
The dataset is about %s.
Statistics: %s

Guidelines:
- Explain the values of the field and how they trend over time.
- Only state facts present in the statistics.
- Quote the numbers.
- Write prose paragraphs, no bullet points.`

const storyPrompt = `You are a data storyteller. Write a data story from the per-field summaries below.
The dataset is about %s.
Summary of each field:
%s
Correlations: %s

Guidelines:
- Pick the interesting aspects of each field and explain the trend of the dataset in about 500 words.
- Use the correlations to connect the fields.
- Only state facts present in the summaries.
- Quote the numbers.
- Write prose paragraphs, no bullet points.`

const affectivePrompt = `Role: you are a story-driven data scientist. Write a one-paragraph summary of the dataset that balances analytical depth with emotional resonance.

Context:
- Purpose of the story: %[1]s
- Emotion to convey: %[2]s
- Target length: %[3]d words

Guidelines:
1. Analyse the data according to the user's description (%[4]s) with the emotion %[2]s.
2. Highlight the key patterns and trends.
3. Shape the narrative to reflect this tone: %[5]s
4. Keep the story aligned with the purpose: %[1]s.
5. Do not use bullet points or headings; write one flowing paragraph.
6. Preserve data accuracy. Adjust only the tone, never the facts.

Constraints:
- Use only the information in this prompt.
- Do not invent facts, numbers or trends.
- If the data cannot support an emotional claim, acknowledge the limitation briefly.
- Some years may be partial; statistics for the first or last year can be skewed by missing months.

Data:
%[6]s`

const recommendPrompt = `You are a data storyteller. Recommend the one emotion that best helps readers understand and remember a story about this dataset.
Description of the dataset: %s
%s

Guidelines:
- Weigh the description heavily; the user may want a specific emotion.
- First decide whether a POSITIVE or NEGATIVE emotion suits the data.
- For POSITIVE pick exactly one of: %s.
- For NEGATIVE pick exactly one of: %s.
- Give the reason in one sentence.

Reply with only a JSON object: {"emotion": "<emotion>", "reason": "<one sentence>"}`

const cautionPrompt = `You are a data storyteller. Make sure no inappropriate emotion is used for a narrative about this dataset.
Description of the dataset: %s
%s

Guidelines:
- Decide whether the dataset is emotionally sensitive (tragic events, trauma, loss or other serious human experiences).
- If it is sensitive, state whether positive or negative emotions would be inappropriate and why, in one sentence.
- If it is not sensitive, set is_there_inappropriate_emotion to false and leave the other fields empty.

Reply with only a JSON object: {"is_there_inappropriate_emotion": <bool>, "inappropriate_emotion": "<positive|negative|>", "reason": "<sentence>"}`

const conceptPrompt = `You are a data storyteller. Extract the core concept of the dataset (what it is about) from its description.
Description of the dataset: %s

Guidelines:
- A short phrase that captures what the dataset is about.
- Concise and easy to understand.
- No specific data points or statistics.

Reply with only a JSON object: {"core_concept": "<phrase>"}`

const instructionPrompt = `You are a data storyteller. Extract any instruction the user gives about the story they want from this description.
Description of the dataset: %s

Guidelines:
- First check whether the description asks for a theme or tone.
- If not, set is_there_any_instruction to false.
- If so, give the instruction as a short phrase capturing the theme and tone.

Reply with only a JSON object: {"is_there_any_instruction": <bool>, "instruction": "<phrase>"}`

const askPrompt = `Question: %s

Context:
%s

Answer using only the context. If the context does not support an answer, say so.`

// bullets renders lines as a "- " prefixed list.
func bullets(lines []string) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s", l)
	}
	return b.String()
}
