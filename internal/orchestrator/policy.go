package orchestrator

// MaxTurns is the message count at which a conversation stops.
const MaxTurns = 20

// freeRecentWindow is how many trailing turns exclude their speakers in free mode.
const freeRecentWindow = 3

// SpeakerPolicy picks the next speaker for a mode. The rotation is derived from
// history alone, so a fresh policy over the same history picks the same persona.
type SpeakerPolicy struct {
	mode     Mode
	personas []Persona
}

// NewSpeakerPolicy creates a policy over an ordered persona list.
func NewSpeakerPolicy(mode Mode, personas []Persona) (*SpeakerPolicy, error) {
	if !mode.Valid() {
		return nil, configError(ErrUnknownMode, "%q", mode)
	}
	if len(personas) < 2 {
		return nil, configError(ErrTooFewPersonas, "got %d", len(personas))
	}
	return &SpeakerPolicy{mode: mode, personas: personas}, nil
}

// NextSpeaker returns the persona who speaks after history.
func (p *SpeakerPolicy) NextSpeaker(history []Message) Persona {
	if len(history) == 0 {
		return p.personas[0]
	}

	switch p.mode {
	case ModeRoundRobin:
		return p.personas[len(history)%len(p.personas)]
	case ModeDebate:
		return p.nextDebater(history)
	case ModeInterview:
		return p.nextInterview(history)
	default:
		return p.nextFree(history)
	}
}

// ShouldContinue reports whether the conversation has turns left.
func ShouldContinue(history []Message) bool {
	return len(history) < MaxTurns
}

// nextDebater picks the first other persona holding a different position.
func (p *SpeakerPolicy) nextDebater(history []Message) Persona {
	last := p.indexOf(history[len(history)-1].PersonaID)
	if last < 0 {
		return p.personas[0]
	}

	position := p.personas[last].Position
	for i, persona := range p.personas {
		if i != last && persona.Position != position {
			return persona
		}
	}
	return p.after(last)
}

// nextInterview alternates the interviewer (first persona) with the interviewees in rotation.
func (p *SpeakerPolicy) nextInterview(history []Message) Persona {
	interviewer := p.personas[0]
	if history[len(history)-1].PersonaID != interviewer.ID {
		return interviewer
	}

	answered := 0
	for _, msg := range history {
		if msg.PersonaID != interviewer.ID {
			answered++
		}
	}
	return p.personas[1+answered%(len(p.personas)-1)]
}

// nextFree picks the first persona absent from the recent turns.
func (p *SpeakerPolicy) nextFree(history []Message) Persona {
	recent := make(map[string]bool, freeRecentWindow)
	for _, msg := range history[max(0, len(history)-freeRecentWindow):] {
		recent[msg.PersonaID] = true
	}

	for _, persona := range p.personas {
		if !recent[persona.ID] {
			return persona
		}
	}
	return p.after(p.indexOf(history[len(history)-1].PersonaID))
}

// after returns the persona following index i cyclically. An unknown index yields the first persona.
func (p *SpeakerPolicy) after(i int) Persona {
	return p.personas[(i+1)%len(p.personas)]
}

func (p *SpeakerPolicy) indexOf(id string) int {
	for i, persona := range p.personas {
		if persona.ID == id {
			return i
		}
	}
	return -1
}
