package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Rephraser rewrites raw status messages into friendlier narration
// through a language model. It never blocks the pipeline: any model
// failure falls back to the raw message.
type Rephraser struct {
	Model llms.Model
}

func NewRephraser(model llms.Model) *Rephraser {
	return &Rephraser{Model: model}
}

func (r *Rephraser) Rephrase(ctx context.Context, rec Record) string {
	prompt := fmt.Sprintf(
		"Rewrite the following music-video pipeline status update as one short, friendly sentence for the user. "+
			"Keep every URL, amount and identifier unchanged. "+
			"Plain text or the HTML tags <b> and <i> only.\n\nStatus: %s", rec.Message)

	out, err := llms.GenerateFromSinglePrompt(ctx, r.Model, prompt)
	if err != nil || strings.TrimSpace(out) == "" {
		return rec.Message
	}
	return strings.TrimSpace(out)
}
