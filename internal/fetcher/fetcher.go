package fetcher

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"strconv"
	"strings"

	"github.com/emersion/go-message"
	// Registers charset decoders so body parts are converted to UTF-8 from
	// their declared charset rather than read as UTF-8 directly.
	_ "github.com/emersion/go-message/charset"

	"github.com/tracyhatemice/kinbox/internal/header"
	km "github.com/tracyhatemice/kinbox/internal/message"
	"github.com/tracyhatemice/kinbox/internal/receiver"
)

const (
	// DefaultLimit is the number of most recent messages fetched per folder.
	DefaultLimit = 50

	// SnippetLength is the maximum snippet length in characters.
	SnippetLength = 200

	// maxBodyRead caps how much of a part is read when building a snippet.
	maxBodyRead = 64 << 10
)

// Fetcher normalizes the messages of one folder.
type Fetcher struct {
	logger *slog.Logger
}

// New creates a Fetcher.
func New(logger *slog.Logger) *Fetcher {
	return &Fetcher{logger: logger}
}

// FetchFolder returns up to limit of the most recently arrived messages in
// folder, newest first. A folder that cannot be selected or searched yields
// no messages. Messages that fail to download or parse are skipped.
func (f *Fetcher) FetchFolder(ctx context.Context, s receiver.Session, folder string, limit int) []km.Message {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if err := s.Select(folder); err != nil {
		f.logger.Debug("folder not selectable", "folder", folder, "error", err)
		return nil
	}

	uids, err := s.SearchAll()
	if err != nil {
		f.logger.Warn("folder search failed", "folder", folder, "error", err)
		return nil
	}
	if len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}

	msgs := make([]km.Message, 0, len(uids))
	for i := len(uids) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			f.logger.Warn("folder fetch interrupted", "folder", folder, "fetched", len(msgs), "error", err)
			break
		}

		uid := uids[i]
		raw, err := s.FetchRaw(uid)
		if err != nil {
			f.logger.Warn("message fetch failed", "folder", folder, "uid", uid, "error", err)
			continue
		}

		msg, err := Normalize(raw)
		if err != nil {
			f.logger.Warn("message parse failed", "folder", folder, "uid", uid, "error", err)
			continue
		}
		msg.UID = strconv.FormatUint(uint64(uid), 10)
		msg.Folder = folder
		msgs = append(msgs, msg)
	}

	f.logger.Debug("folder fetched", "folder", folder, "count", len(msgs))
	return msgs
}

// Normalize parses a raw RFC 5322 message into a Message without UID or
// folder.
func Normalize(raw []byte) (km.Message, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !isRecoverable(err) {
		return km.Message{}, err
	}

	return km.Message{
		Sender:  header.DecodeWords(entity.Header.Get("From")),
		Subject: header.DecodeWords(entity.Header.Get("Subject")),
		Date:    entity.Header.Get("Date"),
		Snippet: Snippet(entity),
	}, nil
}

// Snippet returns a short plain-text excerpt of the entity body. For a
// multipart entity it is taken from the first text/plain part in document
// order that has a readable, non-empty body.
func Snippet(e *message.Entity) string {
	if mr := e.MultipartReader(); mr != nil {
		text, _ := firstPlainText(mr)
		return cleanSnippet(text)
	}
	return cleanSnippet(readText(e.Body))
}

func firstPlainText(mr message.MultipartReader) (string, bool) {
	for {
		part, err := mr.NextPart()
		if err != nil && (part == nil || !isRecoverable(err)) {
			// io.EOF, or the multipart stream is unreadable past this point.
			return "", false
		}
		if text, ok := plainTextOf(part); ok {
			return text, true
		}
	}
}

func plainTextOf(e *message.Entity) (string, bool) {
	if mr := e.MultipartReader(); mr != nil {
		return firstPlainText(mr)
	}

	if !isPlainText(e.Header.Get("Content-Type")) {
		return "", false
	}
	text := readText(e.Body)
	return text, text != ""
}

// isPlainText reports whether a Content-Type value names text/plain. A
// missing or unparseable value defaults to text/plain.
func isPlainText(value string) bool {
	if strings.TrimSpace(value) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return true
	}
	return mediaType == "text/plain"
}

// readText expects r already converted to UTF-8 by go-message from the
// part's declared charset; leftover invalid bytes are dropped.
func readText(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxBodyRead))
	if err != nil {
		return ""
	}
	return truncate(strings.ToValidUTF8(string(body), ""), SnippetLength)
}

func cleanSnippet(s string) string {
	if s == "" {
		return ""
	}
	return truncate(strings.Join(strings.Fields(s), " "), SnippetLength)
}

func truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func isRecoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}
