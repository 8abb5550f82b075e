package dialog

import (
	"context"
	"fmt"
	"time"
)

// ContactUpdater is the slice of the contact-management service the reminder
// hook needs.
type ContactUpdater interface {
	UpdateContact(ctx context.Context, urn string, fields map[string]any) error
}

// Reminders schedules re-engagement timers. Timers are not kept in-process:
// a future timestamp written to the contact-management service makes it emit
// a fresh inbound at that time, which the control layer routes to the resume
// state saved on the session.
type Reminders struct {
	contacts ContactUpdater
}

// NewReminders wraps a contacts client.
func NewReminders(contacts ContactUpdater) *Reminders {
	return &Reminders{contacts: contacts}
}

// Schedule writes a future timestamp into the named contact field.
func (r *Reminders) Schedule(ctx context.Context, urn, field string, at time.Time) error {
	fields := map[string]any{field: at.UTC().Format(time.RFC3339)}
	if err := r.contacts.UpdateContact(ctx, urn, fields); err != nil {
		return fmt.Errorf("schedule reminder %s: %w", field, err)
	}
	return nil
}

// Cancel clears a previously scheduled timer field.
func (r *Reminders) Cancel(ctx context.Context, urn, field string) error {
	fields := map[string]any{field: ""}
	if err := r.contacts.UpdateContact(ctx, urn, fields); err != nil {
		return fmt.Errorf("cancel reminder %s: %w", field, err)
	}
	return nil
}
