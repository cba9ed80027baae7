package message

import "log/slog"

// Message is one normalized message pulled from a mailbox folder.
type Message struct {
	UID     string `json:"uid"` // IMAP UID, unique within Folder only
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Date    string `json:"date"` // raw Date header
	Folder  string `json:"folder"`
	Snippet string `json:"snippet"`
}

// Credentials identify a mailbox for the duration of one request.
type Credentials struct {
	Address string
	Secret  string
}

// String renders the credentials with the secret redacted.
func (c Credentials) String() string {
	return c.Address + ":***"
}

// LogValue keeps the secret out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.StringValue(c.Address)
}
