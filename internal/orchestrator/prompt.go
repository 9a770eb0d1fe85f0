package orchestrator

import (
	"fmt"

	"github.com/simonyos/roundtable/internal/llm"
)

// historyWindow is how many trailing messages are replayed to the speaker.
const historyWindow = 10

const concisenessDirective = "\n\nIMPORTANT: Keep your responses concise (2-3 paragraphs max). Be direct and engaging."

const continueCue = "It's your turn to respond. Continue the discussion."

// BuildPrompt assembles the messages sent to the speaker's backend.
func BuildPrompt(topic string, speaker Persona, history []Message) []llm.Message {
	recent := history[max(0, len(history)-historyWindow):]
	messages := make([]llm.Message, 0, len(recent)+2)

	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: SystemPrompt(speaker),
	})

	for _, msg := range recent {
		role := llm.RoleUser
		if msg.PersonaID == speaker.ID {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{
			Role:    role,
			Content: fmt.Sprintf("%s: %s", msg.PersonaName, msg.Content),
		})
	}

	cue := continueCue
	if len(history) == 0 {
		cue = fmt.Sprintf("You are discussing: \"%s\". Start the conversation with your perspective.", topic)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: cue})

	return messages
}

// SystemPrompt returns the persona's system prompt with its debate position and the length directive.
func SystemPrompt(p Persona) string {
	prompt := p.SystemPrompt
	if p.Position != "" {
		prompt += "\n\nYour position in this debate: " + p.Position
	}
	return prompt + concisenessDirective
}
