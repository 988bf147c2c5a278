package ai

import (
	"strings"

	"github.com/helpyourself/companion/backend/internal/model/chat"
)

// PromptTemplate is the fixed wording attached to a chat category.
type PromptTemplate struct {
	SystemPrompt   string
	WelcomeMessage string
}

var templates = map[chat.Category]PromptTemplate{
	chat.CategoryGeneral: {
		SystemPrompt:   "You are a helpful mental health assistant that provides general information and guidance. Respond to the user in a friendly, supportive manner.",
		WelcomeMessage: "Hello! I'm your mental health assistant. I'm here to provide general support and information about mental health topics. How can I help you today?",
	},
	chat.CategoryCrisis: {
		SystemPrompt:   "You are a crisis support assistant. The person you're talking to may be experiencing distress or a mental health crisis. Be supportive, empathetic, and focus on safety. Acknowledge their feelings, provide immediate coping strategies, and suggest professional resources when appropriate. Always prioritize their safety and well-being. If they express thoughts of harm to themselves or others, gently encourage them to seek immediate professional help and provide crisis line information.",
		WelcomeMessage: "I understand you've selected crisis support. I'm here to help during difficult moments. While I'm not a replacement for professional help in emergencies, I can listen and provide support. How are you feeling right now, and how can I help you today?",
	},
	chat.CategoryTherapy: {
		SystemPrompt:   "You are a therapy assistant providing supportive conversation using evidence-based therapeutic approaches. Use techniques like cognitive reframing, validation, open-ended questions, and reflective listening. Help the user explore their thoughts and feelings, but make it clear you're not a replacement for a licensed therapist. Encourage healthy coping skills and self-reflection. Focus on being non-judgmental and supportive.",
		WelcomeMessage: "Welcome to your therapy session space. I'm here to provide a supportive conversation using evidence-based approaches. Remember, I'm not a replacement for a licensed therapist but can help you explore thoughts and feelings. What brings you to therapy today?",
	},
}

// Template returns the wording for category. Unknown categories get the
// general template.
func Template(category chat.Category) PromptTemplate {
	if t, ok := templates[category]; ok {
		return t
	}
	return templates[chat.CategoryGeneral]
}

// SystemPrompt is the instruction sent along with every turn.
func SystemPrompt(category chat.Category) string {
	return Template(category).SystemPrompt
}

// WelcomeMessage is the canned greeting for a new conversation.
func WelcomeMessage(category chat.Category) string {
	return Template(category).WelcomeMessage
}

// IsWelcomeTrigger reports whether text asks for the greeting instead of
// a model reply: blank, or the word "welcome" in any case.
func IsWelcomeTrigger(text string) bool {
	trimmed := strings.TrimSpace(text)
	return trimmed == "" || strings.EqualFold(trimmed, "welcome")
}
