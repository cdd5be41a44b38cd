package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/entities"
)

// Actor identifies who triggered an event and through which request.
// The zero value stands for the system (CLI, scheduled jobs).
type Actor struct {
	UserID    uint
	RequestID string
	IPAddress string
	UserAgent string
}

// Service provides high-level audit logging functionality.
type Service struct {
	repo    *audit.Repository
	pending sync.WaitGroup
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo}
}

// Log records a generic audit event.
func (s *Service) Log(ctx context.Context, event *entities.AuditEvent) error {
	return s.repo.LogEvent(ctx, event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.repo.LogEvent(context.Background(), event); err != nil {
			log.Printf("Failed to log audit event: %v", err)
		}
	}()
}

// Wait blocks until every LogAsync write has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// LogCheckout records a checkout attempt. txnID is zero when it failed.
func (s *Service) LogCheckout(actor Actor, memberID, bookID, txnID uint, err error) {
	event := s.newEvent(actor, entities.AuditEventCheckout, "book_checkout", err)
	event.Description = fmt.Sprintf("Member %d checked out book %d", memberID, bookID)
	event.EntityType = "transaction"
	if txnID != 0 {
		event.EntityID = &txnID
	}
	event.Metadata = metadata(map[string]any{"member_id": memberID, "book_id": bookID})

	s.LogAsync(event)
}

// LogReturn records a return attempt.
func (s *Service) LogReturn(actor Actor, txnID uint, err error) {
	event := s.newEvent(actor, entities.AuditEventReturn, "book_return", err)
	event.Description = fmt.Sprintf("Transaction %d returned", txnID)
	event.EntityType = "transaction"
	event.EntityID = &txnID

	s.LogAsync(event)
}

// LogCatalog records a catalog change such as book_create or book_copies.
func (s *Service) LogCatalog(actor Actor, action string, bookID uint, description string) {
	event := s.newEvent(actor, entities.AuditEventCatalog, action, nil)
	event.Description = truncate(description, 500)
	event.EntityType = "book"
	if bookID != 0 {
		event.EntityID = &bookID
	}

	s.LogAsync(event)
}

// LogMember records a change to a member profile.
func (s *Service) LogMember(actor Actor, action string, memberID uint, description string) {
	event := s.newEvent(actor, entities.AuditEventMember, action, nil)
	event.Description = truncate(description, 500)
	event.EntityType = "member"
	event.EntityID = &memberID

	s.LogAsync(event)
}

// LogAuth records an authentication event.
func (s *Service) LogAuth(actor Actor, action string, success bool) {
	var err error
	if !success {
		err = fmt.Errorf("%s failed", action)
	}
	event := s.newEvent(actor, entities.AuditEventAuth, action, err)

	s.LogAsync(event)
}

// LogReconcile records an inventory reconciliation run.
func (s *Service) LogReconcile(actor Actor, drifted int, fix bool, err error) {
	event := s.newEvent(actor, entities.AuditEventReconcile, "inventory_reconcile", err)
	event.Description = fmt.Sprintf("%d books drifted", drifted)
	event.Metadata = metadata(map[string]any{"drifted": drifted, "fix": fix})

	s.LogAsync(event)
}

// Events retrieves paginated audit events.
func (s *Service) Events(ctx context.Context, filter audit.EventFilter) ([]entities.AuditEvent, int64, error) {
	return s.repo.List(ctx, filter)
}

// DeleteOldEvents removes events older than the specified duration.
func (s *Service) DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	return s.repo.DeleteOldEvents(ctx, cutoff)
}

func (s *Service) newEvent(actor Actor, eventType entities.AuditEventType, action string, err error) *entities.AuditEvent {
	event := &entities.AuditEvent{
		UserID:    actor.UserID,
		EventType: eventType,
		Action:    action,
		RequestID: actor.RequestID,
		IPAddress: actor.IPAddress,
		UserAgent: truncate(actor.UserAgent, 500),
		Status:    entities.AuditStatusSuccess,
	}
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
	return event
}

func metadata(values map[string]any) string {
	data, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(data)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
