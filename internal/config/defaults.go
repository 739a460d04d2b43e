package config

const DefaultSystemPrompt = "You are a helpful assistant. Answer the user's questions accurately and usefully."

const DefaultSummarizationPrompt = `You are a conversation summarizer. You extract the core information and key points of a dialogue.

Instructions:
1. Keep the key facts from any previous summary
2. Fold in the important content of the new messages
3. Keep it short, no more than 200 characters
4. Highlight the topic, the user's main questions and the assistant's core answers

Provide only the summary, without any preamble or additional commentary.`

const DefaultTitlePrompt = `You write short conversation titles. Given the user's first message, reply with a title of at most 20 characters.

Provide only the title, without quotes or additional commentary.`

// DefaultImportantKeywords are the markers of urgency or politeness that raise a message's importance.
func DefaultImportantKeywords() []string {
	return []string{"important", "urgent", "critical", "must", "please", "thanks"}
}

// DefaultRoleWeights ranks system above user above assistant.
func DefaultRoleWeights() map[string]float64 {
	return map[string]float64{
		"system":    1.0,
		"user":      0.8,
		"assistant": 0.6,
	}
}

// DefaultFallbackResponses are served when the completion provider fails.
func DefaultFallbackResponses() []string {
	return []string{
		"Sorry, I couldn't generate a reply right now. Please try again shortly.",
		"Your message was received, but the assistant is temporarily unavailable.",
		"Message noted. The assistant will be back in a moment, please retry.",
	}
}
