// Package render turns a validated response into the single text blob
// delivered to the client.
package render

import (
	"strings"

	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/datatypes"
)

// Render formats a validated response as user-facing text: the answer,
// then a "Steps:" section with hyphen-prefixed lines when steps exist, then
// a resources section listing each URL on its own line. Pure formatting, no
// failure modes.
func Render(resp datatypes.ValidatedResponse) string {
	var b strings.Builder
	b.WriteString(resp.Answer)

	if len(resp.Steps) > 0 {
		b.WriteString("\n\nSteps:")
		for _, step := range resp.Steps {
			b.WriteString("\n- ")
			b.WriteString(step)
		}
	}

	if len(resp.Resources) > 0 {
		b.WriteString("\n\nHelpful resources:")
		for _, url := range resp.Resources {
			b.WriteString("\n")
			b.WriteString(url)
		}
	}

	return b.String()
}
