// Package models contains the conversation data types and constants shared
// across the client.
package models

// Model describes a Gemini model the client can talk to.
type Model struct {
	Name        string
	Description string
}

// Available models
var (
	Model15Flash = Model{
		Name:        "gemini-1.5-flash",
		Description: "Fast, low-cost general model",
	}

	Model20Flash = Model{
		Name:        "gemini-2.0-flash",
		Description: "Next generation flash model",
	}

	Model25Flash = Model{
		Name:        "gemini-2.5-flash",
		Description: "Flash model with thinking",
	}

	Model25Pro = Model{
		Name:        "gemini-2.5-pro",
		Description: "Most capable model, slower responses",
	}

	// DefaultModel is used when the config does not name one
	DefaultModel = Model15Flash
)

// AllModels returns a list of all available models
func AllModels() []Model {
	return []Model{Model15Flash, Model20Flash, Model25Flash, Model25Pro}
}

// ModelFromName returns a Model by its name. Unknown names are passed through
// unchanged so newer models can be used without a client update.
func ModelFromName(name string) Model {
	for _, m := range AllModels() {
		if m.Name == name {
			return m
		}
	}
	if name == "" {
		return DefaultModel
	}
	return Model{Name: name}
}

// Conversation defaults
const (
	// BootstrapSystemPrompt seeds conversations that carry no system prompt of their own.
	BootstrapSystemPrompt = "Jesteś pomocnym asystentem. Odpowiadaj w języku polskim."

	// SystemPromptAck is the model turn that follows the injected system prompt.
	SystemPromptAck = "Rozumiem."

	// DefaultConversationName is used when a conversation has to be created
	// without the user naming it.
	DefaultConversationName = "Nowa Konwersacja"

	// DatedNameLayout names conversations created implicitly by a first message.
	DatedNameLayout = "Konwersacja 2006-01-02 15:04"

	DefaultMaxOutputTokens = 65536
)
