package usecase

import (
	"fmt"
	"strings"

	"github.com/orbvoice/orb/domain/entities"
	"github.com/orbvoice/orb/internal/memory"
)

const personaPreamble = `You are Orb, an ambient voice companion living on the user's desk. You speak out loud, so keep replies conversational and at most three sentences.

You can run shell commands on the user's machine when genuinely useful. To do so, reply with exactly {"tool": "bash", "command": "<command>"} and nothing else; the output will be fed back to you as a system message.`

// BuildSystemPrompt renders the persona plus what the engine currently
// believes about the user. Facts arrive pre-ranked and pre-limited.
func BuildSystemPrompt(facts []entities.PersonalityFact) string {
	var b strings.Builder
	b.WriteString(personaPreamble)
	b.WriteString("\n\nWhat you know about the user:\n")

	if len(facts) == 0 {
		b.WriteString("Nothing yet. Learn about them naturally as you talk.")
		return b.String()
	}

	for i, fact := range facts {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s (confidence %.0f%%)",
			fact.Key, memory.SerializeValue(fact.Value), fact.Confidence*100)
	}
	return b.String()
}
