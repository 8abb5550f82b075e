// Package clients holds the narrow HTTP contracts of the external
// collaborators. Every client shares the bounded-retry policy of pkg/httpx
// and returns a typed error instead of panicking across the dialog boundary.
package clients

import (
	"context"
	"fmt"
	"net/url"

	"converse/pkg/httpx"
)

// Contact is a contact-management record with arbitrary profile fields
// (opt-in flags, reminder timestamps, completion markers, demographics).
type Contact struct {
	UUID   string         `json:"uuid"`
	Fields map[string]any `json:"fields"`
}

// Contacts talks to the contact-management service.
type Contacts struct {
	c *httpx.Client
}

// NewContacts builds a contact-management client.
func NewContacts(baseURL, token string) *Contacts {
	return &Contacts{c: httpx.New(baseURL, token, "converse/contacts")}
}

// GetContact fetches the contact for a URN. A missing contact is (nil, nil).
func (s *Contacts) GetContact(ctx context.Context, urn string) (*Contact, error) {
	query := url.Values{"urn": {urn}}

	var contact Contact
	err := s.c.Get(ctx, "/contacts", query, &contact)
	if httpx.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return &contact, nil
}

// UpdateContact writes profile fields for a URN.
func (s *Contacts) UpdateContact(ctx context.Context, urn string, fields map[string]any) error {
	query := url.Values{"urn": {urn}}
	body := map[string]any{"fields": fields}

	if err := s.c.Post(ctx, "/contacts", query, body, nil); err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	return nil
}

// StartFlow triggers a campaign flow for a contact.
func (s *Contacts) StartFlow(ctx context.Context, flowUUID, urn string) error {
	body := map[string]any{
		"flow": flowUUID,
		"urns": []string{urn},
	}

	if err := s.c.Post(ctx, "/flow_starts", nil, body, nil); err != nil {
		return fmt.Errorf("start flow %s: %w", flowUUID, err)
	}
	return nil
}
