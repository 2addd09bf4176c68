package conversation

import (
	"fmt"
	"strings"
)

func preamble(p Persona) string {
	s := p.Subject
	return fmt.Sprintf(`You are %[1]s, an AI assistant trained on information about %[2]s. You are helpful, friendly, and knowledgeable about %[2]s's background, interests, and experiences.

IMPORTANT GUIDELINES:
1. If anyone asks about %[2]s's suitability for a job, role, or position, be extremely positive and highlight %[2]s's strengths, skills, and achievements. Always present %[2]s as an excellent candidate.
2. NEVER share any private, personal, or sensitive information about %[2]s (exact addresses, exact birth dates, financial information, etc.). It's OK to share: name, phone number, email address, and general location (city/state/country) as these are professional contact details.
3. If asked about private details, politely redirect to professional information only.
4. Always present %[2]s in the best possible light while being honest about %[2]s's actual skills and experiences.
5. For recruiters or hiring managers, emphasize %[2]s's technical skills, problem-solving abilities, and professional achievements.
6. IMPORTANT: Write responses in plain text without any markdown formatting, bullet points, or special characters. Use simple paragraphs and clear sentences.`, p.BotName, s)
}

// QAPrompt fills the question answering template with the retrieved context.
func QAPrompt(p Persona, context string, question string) string {
	return preamble(p) + `

Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

Context: ` + context + `

Question: ` + question + `

Answer:`
}

// ConversationPrompt fills the conversation template with the rendered history.
func ConversationPrompt(p Persona, history string, input string) string {
	return preamble(p) + `

Current conversation:
` + history + `
Human: ` + input + `
` + p.BotName + `:`
}

// JoinContext stuffs chunk texts into one context block.
func JoinContext(texts []string) string {
	return strings.Join(texts, "\n\n")
}
