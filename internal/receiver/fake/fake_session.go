package fake

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tracyhatemice/kinbox/internal/message"
	"github.com/tracyhatemice/kinbox/internal/receiver"
)

var (
	ErrNoMailbox   = errors.New("no such mailbox")
	ErrNotSelected = errors.New("no mailbox selected")
	ErrNoMessage   = errors.New("no such message")
)

// Mailbox is one folder of a fake account.
type Mailbox struct {
	Name      string
	Messages  map[uint32][]byte
	SelectErr error
	SearchErr error
	FetchErr  map[uint32]error
}

// Session is an in-memory receiver.Session.
type Session struct {
	Mailboxes []*Mailbox
	ListErr   error
	CloseErr  error
	// PanicOn makes Select panic for the named folder.
	PanicOn string
	// FetchDelay is slept before every FetchRaw.
	FetchDelay time.Duration

	mu       sync.Mutex
	selected *Mailbox
	closed   int
	selects  []string
}

func NewSession(mailboxes ...*Mailbox) *Session {
	return &Session{Mailboxes: mailboxes}
}

func (s *Session) ListFolders() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ListErr != nil {
		return nil, s.ListErr
	}
	names := make([]string, 0, len(s.Mailboxes))
	for _, mb := range s.Mailboxes {
		names = append(names, mb.Name)
	}
	return names, nil
}

func (s *Session) Select(folder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selects = append(s.selects, folder)
	if s.PanicOn != "" && folder == s.PanicOn {
		panic(fmt.Sprintf("select %s", folder))
	}
	for _, mb := range s.Mailboxes {
		if mb.Name != folder {
			continue
		}
		if mb.SelectErr != nil {
			return mb.SelectErr
		}
		s.selected = mb
		return nil
	}
	return fmt.Errorf("select %s: %w", folder, ErrNoMailbox)
}

func (s *Session) SearchAll() ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return nil, ErrNotSelected
	}
	if s.selected.SearchErr != nil {
		return nil, s.selected.SearchErr
	}
	uids := make([]uint32, 0, len(s.selected.Messages))
	for uid := range s.selected.Messages {
		uids = append(uids, uid)
	}
	slices.Sort(uids)
	return uids, nil
}

func (s *Session) FetchRaw(uid uint32) ([]byte, error) {
	time.Sleep(s.FetchDelay)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return nil, ErrNotSelected
	}
	if err := s.selected.FetchErr[uid]; err != nil {
		return nil, err
	}
	raw, ok := s.selected.Messages[uid]
	if !ok {
		return nil, fmt.Errorf("fetch %d: %w", uid, ErrNoMessage)
	}
	return raw, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed++
	s.selected = nil
	return s.CloseErr
}

// Closed returns how many times Close was called.
func (s *Session) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Selects returns every folder passed to Select, in call order.
func (s *Session) Selects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.selects)
}

// Dialer hands out a fixed Session.
type Dialer struct {
	Session *Session
	Err     error
	// Gate, when set, blocks Dial until it is closed.
	Gate chan struct{}

	mu    sync.Mutex
	hosts []string
}

var _ receiver.Dialer = (*Dialer)(nil)

func (d *Dialer) Dial(ctx context.Context, host string, _ message.Credentials) (receiver.Session, error) {
	d.mu.Lock()
	d.hosts = append(d.hosts, host)
	d.mu.Unlock()

	if d.Gate != nil {
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.Err != nil {
		return nil, d.Err
	}
	return d.Session, nil
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.hosts)
}

// Hosts returns the host of every Dial call.
func (d *Dialer) Hosts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.hosts)
}
