package answer

import (
	"context"
	"strings"
)

// AnswerPrompt restricts the model to the retrieved context.
const AnswerPrompt = `You are an assistant for question-answering tasks. Use the following pieces of retrieved context to answer the question. If the context does not contain the answer, say that you don't know. Do not use outside knowledge. Use three sentences maximum and keep the answer concise.`

// PromptVars are the values bound into the answer template.
type PromptVars struct {
	Question string
	Context  string
}

// BuildPrompt renders the template for vars.
func BuildPrompt(vars PromptVars) string {
	var sb strings.Builder
	sb.WriteString(AnswerPrompt)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(vars.Question)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(vars.Context)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

// Completer is a raw text-completion backend.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// TemplateGenerator renders the answer template and sends it to a Completer.
type TemplateGenerator struct {
	Completer Completer
}

func (g TemplateGenerator) Generate(ctx context.Context, vars PromptVars) (string, error) {
	return g.Completer.Complete(ctx, BuildPrompt(vars))
}
