package query

import (
	"context"
	"strings"

	"github.com/tracyhatemice/kinbox/internal/header"
	"github.com/tracyhatemice/kinbox/internal/message"
)

// Aggregator produces the full message list for an account.
type Aggregator interface {
	Aggregate(ctx context.Context, creds message.Credentials) ([]message.Message, error)
}

// ValidationError reports a missing or malformed request parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Result is a list of messages with its length.
type Result struct {
	Messages []message.Message `json:"messages"`
	Count    int               `json:"count"`
}

// SearchResult is a Result filtered by a search term.
type SearchResult struct {
	Messages   []message.Message `json:"messages"`
	Count      int               `json:"count"`
	SearchTerm string            `json:"search_term"`
}

// Service answers read queries over an account's messages.
type Service struct {
	agg Aggregator
}

func NewService(agg Aggregator) *Service {
	return &Service{agg: agg}
}

// List returns every aggregated message.
func (s *Service) List(ctx context.Context, creds message.Credentials) (Result, error) {
	msgs, err := s.agg.Aggregate(ctx, creds)
	if err != nil {
		return Result{}, err
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return Result{Messages: msgs, Count: len(msgs)}, nil
}

// SearchBySender returns the messages whose sender contains term, ignoring
// case. Both the full sender field and its bare address are matched.
func (s *Service) SearchBySender(ctx context.Context, creds message.Credentials, term string) (SearchResult, error) {
	if term == "" {
		return SearchResult{}, &ValidationError{Field: "sender", Message: "Sender parameter is required"}
	}

	msgs, err := s.agg.Aggregate(ctx, creds)
	if err != nil {
		return SearchResult{}, err
	}

	filtered := FilterBySender(msgs, term)
	return SearchResult{Messages: filtered, Count: len(filtered), SearchTerm: term}, nil
}

// FilterBySender keeps the messages matching term as SearchBySender does.
func FilterBySender(msgs []message.Message, term string) []message.Message {
	needle := strings.ToLower(term)
	out := make([]message.Message, 0)
	for _, m := range msgs {
		sender := strings.ToLower(m.Sender)
		address := strings.ToLower(header.ExtractAddress(sender))
		if strings.Contains(sender, needle) || strings.Contains(address, needle) {
			out = append(out, m)
		}
	}
	return out
}
