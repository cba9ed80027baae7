package aggregator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tracyhatemice/kinbox/internal/cache"
	"github.com/tracyhatemice/kinbox/internal/fetcher"
	"github.com/tracyhatemice/kinbox/internal/message"
	"github.com/tracyhatemice/kinbox/internal/receiver"
)

const (
	// DefaultFolderLimit is the number of messages fetched per folder.
	DefaultFolderLimit = 30

	// listFallbackCount is how many listed folders are scanned when none of
	// the preferred ones exist.
	listFallbackCount = 5
)

var (
	// PreferredFolders are scanned, in this order, when the account has them.
	PreferredFolders = []string{"INBOX", "SPAM", "Junk", "PROMOTIONS", "Promotions", "Sent", "Drafts"}

	// FallbackFolders are scanned when the folder listing fails.
	FallbackFolders = []string{"INBOX", "SPAM", "Junk"}
)

// Resolver maps an address to its IMAP host.
type Resolver interface {
	Resolve(address string) string
}

// Config tunes an Aggregator.
type Config struct {
	// FolderLimit caps the messages fetched per folder.
	FolderLimit int
	// Timeout bounds one whole aggregation, connection included.
	Timeout time.Duration
	// Coalesce makes concurrent calls with identical credentials share one
	// fetch.
	Coalesce bool
}

// Aggregator collects the recent messages of an account across folders.
type Aggregator struct {
	cfg      Config
	resolver Resolver
	dialer   receiver.Dialer
	fetcher  *fetcher.Fetcher
	cache    cache.Store
	logger   *slog.Logger
	flights  singleflight.Group
}

// New creates an Aggregator. A nil store disables caching.
func New(cfg Config, res Resolver, dialer receiver.Dialer, store cache.Store, logger *slog.Logger) *Aggregator {
	if cfg.FolderLimit <= 0 {
		cfg.FolderLimit = DefaultFolderLimit
	}
	if store == nil {
		store = cache.Nop{}
	}
	return &Aggregator{
		cfg:      cfg,
		resolver: res,
		dialer:   dialer,
		fetcher:  fetcher.New(logger),
		cache:    store,
		logger:   logger,
	}
}

// Aggregate returns the account's recent messages from every scanned folder,
// sorted by descending raw Date header. Results are served from the cache
// while fresh.
//
// The sort compares Date headers as strings, so the order is lexicographic
// rather than chronological.
func (a *Aggregator) Aggregate(ctx context.Context, creds message.Credentials) ([]message.Message, error) {
	key := cache.Key(creds.Address, cache.DefaultScope)
	if msgs, ok := a.cached(key); ok {
		a.logger.Debug("serving cached messages", "account", creds, "count", len(msgs))
		return msgs, nil
	}

	if !a.cfg.Coalesce {
		return a.collect(ctx, key, creds)
	}

	// The shared fetch outlives the caller that started it; the timeout in
	// collect still bounds it.
	ch := a.flights.DoChan(flightKey(key, creds.Secret), func() (any, error) {
		return a.collect(context.WithoutCancel(ctx), key, creds)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		msgs := res.Val.([]message.Message)
		if res.Shared {
			msgs = slices.Clone(msgs)
		}
		return msgs, nil
	case <-ctx.Done():
		return nil, &AggregationError{Err: ctx.Err()}
	}
}

func (a *Aggregator) collect(ctx context.Context, key string, creds message.Credentials) (msgs []message.Message, err error) {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	host := a.resolver.Resolve(creds.Address)
	session, err := a.dialer.Dial(ctx, host, creds)
	if err != nil {
		a.logger.Warn("mailbox login failed", "account", creds, "host", host, "error", err)
		return nil, &AuthError{Host: host, Err: err}
	}
	defer a.release(session)
	defer func() {
		if r := recover(); r != nil {
			msgs, err = nil, &AggregationError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	folders := a.folders(session)
	a.logger.Debug("scanning folders", "account", creds, "folders", folders)

	all := make([]message.Message, 0)
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return nil, &AggregationError{Err: err}
		}
		all = append(all, a.fetchFolder(ctx, session, folder)...)
	}
	// FetchFolder stops early once ctx ends; a partial list is never cached.
	if err := ctx.Err(); err != nil {
		return nil, &AggregationError{Err: err}
	}

	slices.SortStableFunc(all, func(x, y message.Message) int {
		return strings.Compare(y.Date, x.Date)
	})

	if err := a.cache.Set(key, all); err != nil {
		a.logger.Warn("cache write failed", "error", err)
	}

	a.logger.Info("messages aggregated", "account", creds, "folders", len(folders), "count", len(all))
	return all, nil
}

// folders picks the folders to scan from the account's listing.
func (a *Aggregator) folders(s receiver.Session) []string {
	available, err := s.ListFolders()
	if err != nil {
		a.logger.Warn("folder listing failed, using defaults", "error", err)
		return slices.Clone(FallbackFolders)
	}
	return selectFolders(available)
}

func selectFolders(available []string) []string {
	var picked []string
	for _, f := range PreferredFolders {
		if slices.Contains(available, f) {
			picked = append(picked, f)
		}
	}
	if len(picked) > 0 {
		return picked
	}
	if len(available) > listFallbackCount {
		available = available[:listFallbackCount]
	}
	return slices.Clone(available)
}

// fetchFolder fetches one folder; a failure only loses that folder.
func (a *Aggregator) fetchFolder(ctx context.Context, s receiver.Session, folder string) (msgs []message.Message) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("folder fetch failed", "folder", folder, "error", r)
			msgs = nil
		}
	}()
	return a.fetcher.FetchFolder(ctx, s, folder, a.cfg.FolderLimit)
}

func (a *Aggregator) cached(key string) ([]message.Message, bool) {
	msgs, ok, err := a.cache.Get(key)
	if err != nil {
		a.logger.Warn("cache read failed", "error", err)
		return nil, false
	}
	return msgs, ok
}

func (a *Aggregator) release(s receiver.Session) {
	if err := s.Close(); err != nil {
		a.logger.Debug("session release failed", "error", err)
	}
}

// flightKey separates in-flight fetches by secret so that a caller with a
// wrong password never joins a fetch made with the right one.
func flightKey(key, secret string) string {
	sum := sha256.Sum256([]byte(key + ":" + secret))
	return hex.EncodeToString(sum[:])
}
