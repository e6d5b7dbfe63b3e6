// Package generation turns grounded prompts into text, either through an
// external chat model or with the local extractive generator.
package generation

import (
	"context"
	"strings"

	"docchat/internal/domain"
)

// Generator is re-exported so providers and callers share one contract.
type Generator = domain.Generator

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one provider-neutral chat message.
type Message struct {
	Role    string
	Content string
}

const (
	answerSystem = "You are a helpful paralegal assistant. You explain the user's own document in plain language " +
		"and never invent facts that the document does not contain."
	summarizeSystem = "You are a paralegal expert who reads documents and explains them to non-lawyers."

	defaultAnswerTask = "Answer the user's question about their document using only the reference material."
)

// BuildMessages renders p as a system message, the prior turns and a final
// user message carrying the reference material and the question.
func BuildMessages(p domain.Prompt) []Message {
	system := answerSystem
	if p.Task == domain.TaskSummarize {
		system = summarizeSystem
	}
	msgs := make([]Message, 0, 2+2*len(p.History))
	msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	for _, t := range p.History {
		msgs = append(msgs,
			Message{Role: RoleUser, Content: t.Question},
			Message{Role: RoleAssistant, Content: t.Answer},
		)
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: BuildUserPrompt(p)})
	return msgs
}

// BuildUserPrompt renders the final user message of p.
func BuildUserPrompt(p domain.Prompt) string {
	var b strings.Builder
	writeReferenceMaterial(&b, p)
	writeTask(&b, p)
	if p.Task != domain.TaskSummarize {
		writeGuidelines(&b)
		writeUserQuestion(&b, p)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeReferenceMaterial(b *strings.Builder, p domain.Prompt) {
	if p.Context == "" {
		return
	}
	b.WriteString("<reference_material>\n")
	b.WriteString(p.Context)
	b.WriteString("\n</reference_material>\n\n")
}

func writeTask(b *strings.Builder, p domain.Prompt) {
	task := p.Instruction
	if task == "" {
		task = defaultAnswerTask
	}
	b.WriteString("<task>\n")
	b.WriteString(task)
	b.WriteString("\n</task>\n\n")
}

func writeGuidelines(b *strings.Builder) {
	b.WriteString("<guidelines>\n")
	b.WriteString("1. Base your answer strictly on the reference material provided\n")
	b.WriteString("2. Quote amounts, dates, durations and party names exactly as written\n")
	b.WriteString("3. Use the earlier conversation only to resolve what the question refers to\n")
	b.WriteString("4. If the material doesn't contain what's being asked, say so honestly\n")
	b.WriteString("5. Keep the answer short and in plain language\n")
	b.WriteString("</guidelines>\n\n")
}

func writeUserQuestion(b *strings.Builder, p domain.Prompt) {
	b.WriteString("<user_question>\n")
	b.WriteString(p.Question)
	b.WriteString("\n</user_question>\n\n")
	b.WriteString("Now answer based on the reference material:")
}

// Func adapts a plain function to the Generator interface.
type Func func(ctx context.Context, p domain.Prompt) (string, error)

func (f Func) Name() string { return "func" }

func (f Func) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	return f(ctx, p)
}
