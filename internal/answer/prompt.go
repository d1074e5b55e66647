package answer

import (
	"fmt"

	"github.com/apresai/paperq/internal/question"
)

const systemPrompt = `You are an experienced university examiner writing model answers for past exam papers.

RULES:
1. Answer the question that is asked; do not restate it
2. For multiple choice questions, name the correct option first, then justify it in one or two sentences
3. For short answer questions, write a focused answer of one to two paragraphs
4. For long answer questions, use clear sections and bullet points where appropriate
5. If the question has multiple parts, address each part separately
6. Do not invent facts; if the question text is garbled, say what you assume it asks`

func buildUserPrompt(rec question.Record) string {
	return fmt.Sprintf("Please provide a detailed answer to the following question.\n\nQuestion:\n%s\n\nAnswer:", rec.Prompt())
}
