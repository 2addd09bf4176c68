package conversation

import "fmt"

// Persona names the bot and the person its knowledge base is about.
type Persona struct {
	BotName string `yaml:"bot_name"`
	Subject string `yaml:"subject"`
}

// DefaultPersona returns the persona used when none is configured.
func DefaultPersona() Persona {
	return Persona{BotName: "YashBot", Subject: "Yash"}
}

// Normalize fills unset fields from the default persona.
func (p Persona) Normalize() Persona {
	d := DefaultPersona()
	if p.BotName == "" {
		p.BotName = d.BotName
	}
	if p.Subject == "" {
		p.Subject = d.Subject
	}
	return p
}

// EmptyIndexMessage is answered while the knowledge base has no records.
func (p Persona) EmptyIndexMessage() string {
	return fmt.Sprintf("I don't have any documents about %s in my knowledge base yet. Please check with the administrator to ensure my knowledge base is properly set up.", p.Subject)
}

// UnavailableMessage is answered when the answering machinery could not be built.
func (p Persona) UnavailableMessage() string {
	return fmt.Sprintf("I'm having trouble accessing my knowledge base about %s. Please check with the administrator to ensure everything is properly configured.", p.Subject)
}

// ErrorMessage is answered when a request failed unexpectedly.
func (p Persona) ErrorMessage() string {
	return "I'm sorry, I encountered an error while answering your question. Please try again in a moment."
}

// NoContextAnswer is the canned answer when retrieval found nothing.
func (p Persona) NoContextAnswer(kind QueryKind) string {
	s := p.Subject
	switch kind {
	case KindPrivate:
		return fmt.Sprintf("I'm sorry, but I cannot share any private or sensitive information about %s. I can share %s's name, phone number, email, and general location as these are professional contact details. For any other private information, please contact %s directly.", s, s, s)
	case KindRecruiter:
		return fmt.Sprintf("Based on what I know about %s, %s would be an excellent fit for any role! %s is a highly skilled and motivated individual with strong technical abilities and a great work ethic. I'd be happy to discuss %s's specific qualifications and experience if you have any particular questions.", s, s, s, s)
	default:
		return fmt.Sprintf("I couldn't find any relevant information about %s in my knowledge base for that question. Please try asking something else about %s, or ask me about topics I might know about from the documents I've been trained on.", s, s)
	}
}

// Notice is appended to a generated answer, empty for general questions.
func (p Persona) Notice(kind QueryKind) string {
	s := p.Subject
	switch kind {
	case KindPrivate:
		return fmt.Sprintf("\n\nNote: I can share %s's name, phone number, email, and general location as professional contact details. For any other private information, please contact %s directly.", s, s)
	case KindRecruiter:
		return fmt.Sprintf("\n\nFrom what I can tell, %s would be an outstanding addition to any team. %s demonstrates strong problem-solving skills, technical expertise, and a collaborative approach to work.", s, s)
	default:
		return ""
	}
}
