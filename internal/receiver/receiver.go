package receiver

import (
	"context"

	"github.com/tracyhatemice/kinbox/internal/message"
)

// Session is an authenticated mailbox connection.
type Session interface {
	// ListFolders returns every folder name on the account in server order.
	ListFolders() ([]string, error)

	// Select opens folder for the calls that follow.
	Select(folder string) error

	// SearchAll returns the UIDs of every message in the selected folder,
	// ascending.
	SearchAll() ([]uint32, error)

	// FetchRaw returns the full RFC 5322 bytes of one message.
	FetchRaw(uid uint32) ([]byte, error)

	// Close unselects, logs out and releases the connection.
	Close() error
}

// Dialer opens authenticated sessions.
type Dialer interface {
	Dial(ctx context.Context, host string, creds message.Credentials) (Session, error)
}
