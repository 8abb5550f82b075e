package clients

import (
	"context"
	"fmt"

	"converse/pkg/httpx"
)

// EventStore records survey completions and accepts submissions.
type EventStore struct {
	c *httpx.Client
}

// NewEventStore builds an event-store client.
func NewEventStore(baseURL, token string) *EventStore {
	return &EventStore{c: httpx.New(baseURL, token, "converse/eventstore")}
}

// Completed reports whether the address already completed the survey.
// The service answers 404 for "never completed".
func (s *EventStore) Completed(ctx context.Context, survey, address string) (bool, error) {
	err := s.c.Get(ctx, fmt.Sprintf("/%s/%s", survey, address), nil, nil)
	if httpx.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check %s completion: %w", survey, err)
	}
	return true, nil
}

// Submit posts the survey payload.
func (s *EventStore) Submit(ctx context.Context, survey string, payload any) error {
	if err := s.c.Post(ctx, fmt.Sprintf("/%s/", survey), nil, payload, nil); err != nil {
		return fmt.Errorf("submit %s: %w", survey, err)
	}
	return nil
}
