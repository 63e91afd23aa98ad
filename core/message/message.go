// Package message describes transport-neutral outbound replies produced by
// the dialog and FAQ cores. Rendering is left to the transport.
package message

// Fact is a single label/value row of a card.
type Fact struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Card is a structured reply with a title and a list of facts.
type Card struct {
	Title string `json:"title"`
	Facts []Fact `json:"facts"`
}

// Message is one outbound reply. Exactly one of Text or Card is expected to
// be set; Choices may accompany a text message.
type Message struct {
	Text    string   `json:"text,omitempty"`
	Card    *Card    `json:"card,omitempty"`
	Choices []string `json:"choices,omitempty"`
}

// Text builds a plain text message.
func Text(text string) Message {
	return Message{Text: text}
}

// WithChoices builds a text message offering the given choices.
func WithChoices(text string, choices ...string) Message {
	cp := make([]string, len(choices))
	copy(cp, choices)
	return Message{Text: text, Choices: cp}
}

// NewCard builds a card message.
func NewCard(title string, facts ...Fact) Message {
	cp := make([]Fact, len(facts))
	copy(cp, facts)
	return Message{Card: &Card{Title: title, Facts: cp}}
}

// IsCard reports whether the message carries a card payload.
func (m Message) IsCard() bool {
	return m.Card != nil
}
