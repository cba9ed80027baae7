package receiver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/tracyhatemice/kinbox/internal/message"
)

// DefaultPort is the IMAPS port.
const DefaultPort = 993

// IMAPDialer opens sessions over implicit TLS.
type IMAPDialer struct {
	port      int
	tlsConfig *tls.Config
	logger    *slog.Logger
}

// NewIMAP creates a new IMAP dialer. A zero port uses DefaultPort and a nil
// tlsConfig verifies the server against the system roots.
func NewIMAP(port int, tlsConfig *tls.Config, logger *slog.Logger) *IMAPDialer {
	if port == 0 {
		port = DefaultPort
	}
	return &IMAPDialer{
		port:      port,
		tlsConfig: tlsConfig,
		logger:    logger,
	}
}

// Dial connects to host and logs in with creds. The context deadline bounds
// every command issued on the returned session, and cancelling the context
// aborts whatever is in flight.
func (d *IMAPDialer) Dial(ctx context.Context, host string, creds message.Credentials) (Session, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(d.port))

	cfg := &tls.Config{ServerName: host}
	if d.tlsConfig != nil {
		cfg = d.tlsConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
	}

	dialer := &tls.Dialer{Config: cfg}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("imap connect %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})

	client := imapclient.New(conn, nil)
	if err := client.Login(creds.Address, creds.Secret).Wait(); err != nil {
		stop()
		_ = client.Close()
		return nil, fmt.Errorf("imap login %s: %w", creds.Address, err)
	}

	d.logger.Debug("imap session opened", "host", host, "account", creds)
	return &imapSession{
		client: client,
		stop:   stop,
		logger: d.logger,
	}, nil
}

type imapSession struct {
	client   *imapclient.Client
	stop     func() bool
	selected bool
	logger   *slog.Logger
}

func (s *imapSession) ListFolders() ([]string, error) {
	boxes, err := s.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap list: %w", err)
	}
	names := make([]string, 0, len(boxes))
	for _, b := range boxes {
		names = append(names, b.Mailbox)
	}
	return names, nil
}

func (s *imapSession) Select(folder string) error {
	if _, err := s.client.Select(folder, nil).Wait(); err != nil {
		// A failed SELECT leaves no mailbox selected.
		s.selected = false
		return fmt.Errorf("imap select %s: %w", folder, err)
	}
	s.selected = true
	return nil
}

func (s *imapSession) SearchAll() ([]uint32, error) {
	data, err := s.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	all := data.AllUIDs()
	uids := make([]uint32, 0, len(all))
	for _, uid := range all {
		uids = append(uids, uint32(uid))
	}
	slices.Sort(uids)
	return uids, nil
}

func (s *imapSession) FetchRaw(uid uint32) ([]byte, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	fetchOptions := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	buffers, err := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), fetchOptions).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch %d: %w", uid, err)
	}
	if len(buffers) == 0 {
		return nil, fmt.Errorf("imap fetch %d: message not found", uid)
	}

	content := buffers[0].FindBodySection(section)
	if len(content) == 0 {
		return nil, fmt.Errorf("imap fetch %d: empty body", uid)
	}
	return content, nil
}

func (s *imapSession) Close() error {
	defer s.stop()

	var errs []error
	if s.selected {
		if err := s.client.Unselect().Wait(); err != nil {
			errs = append(errs, fmt.Errorf("imap unselect: %w", err))
		}
	}
	if err := s.client.Logout().Wait(); err != nil {
		errs = append(errs, fmt.Errorf("imap logout: %w", err))
	}
	if err := s.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("imap close: %w", err))
	}
	return errors.Join(errs...)
}
