package model

// Notification is an outbound message to a resident. Body is Markdown; the
// delivering adapter derives the HTML alternative when BodyHTML is empty.
type Notification struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	BodyHTML string `json:"body_html,omitempty"`
}
