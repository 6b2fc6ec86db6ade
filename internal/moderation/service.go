//go:generate go run go.uber.org/mock/mockgen -source=service.go -destination=../mocks/mock_notifier.go -package=mocks

// Package moderation is the administrative side of the ban table: ban,
// unban and list operations over the same store the admission gate reads,
// plus change notifications for other processes.
package moderation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stargaze/chat-gateway/internal/ban"
	"github.com/stargaze/chat-gateway/internal/metrics"
)

// Ban change actions carried by Event.
const (
	ActionBan   = "ban"
	ActionUnban = "unban"
)

// Event describes one committed change to the ban table.
type Event struct {
	Action    string     `json:"action"`
	Address   string     `json:"ip"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	At        time.Time  `json:"at"`
}

// Notifier is told about ban changes after they are stored.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// BanOption customizes a Ban call.
type BanOption func(*ban.Entry)

// WithExpiry makes the ban lapse at t. Without it a ban never expires.
func WithExpiry(t time.Time) BanOption {
	return func(e *ban.Entry) {
		t := t.UTC()
		e.ExpiresAt = &t
	}
}

// Service performs ban table mutations. Changes apply to future admissions
// only; connections that are already open stay open.
type Service struct {
	store     ban.Store
	notifiers []Notifier
	now       func() time.Time
	logger    *zap.Logger
}

// NewService creates a Service over store.
func NewService(store ban.Store, logger *zap.Logger, notifiers ...Notifier) *Service {
	return &Service{
		store:     store,
		notifiers: notifiers,
		now:       time.Now,
		logger:    logger.Named("moderation"),
	}
}

// Ban creates or replaces the entry for address.
func (s *Service) Ban(ctx context.Context, address, reason string, opts ...BanOption) error {
	if address == "" {
		return ban.ErrEmptyAddress
	}
	entry := ban.Entry{Address: address, Reason: reason}
	for _, opt := range opts {
		opt(&entry)
	}

	if err := s.store.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("moderation: ban %s: %w", address, err)
	}
	metrics.BanEvents.WithLabelValues(ActionBan).Inc()
	s.logger.Info("address banned", zap.String("address", address), zap.String("reason", reason), zap.Timep("expires_at", entry.ExpiresAt))

	s.notify(ctx, Event{
		Action:    ActionBan,
		Address:   address,
		Reason:    reason,
		ExpiresAt: entry.ExpiresAt,
		At:        s.now().UTC(),
	})
	return nil
}

// Unban removes the entry for address. Unbanning an address that is not
// banned succeeds and changes nothing.
func (s *Service) Unban(ctx context.Context, address string) error {
	if address == "" {
		return ban.ErrEmptyAddress
	}
	if err := s.store.Delete(ctx, address); err != nil {
		return fmt.Errorf("moderation: unban %s: %w", address, err)
	}
	metrics.BanEvents.WithLabelValues(ActionUnban).Inc()
	s.logger.Info("address unbanned", zap.String("address", address))

	s.notify(ctx, Event{Action: ActionUnban, Address: address, At: s.now().UTC()})
	return nil
}

// List returns every stored entry, including expired ones.
func (s *Service) List(ctx context.Context) ([]ban.Entry, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("moderation: list: %w", err)
	}
	return entries, nil
}

// notify fans ev out to every notifier. The change is already committed, so
// a failing notifier is only logged.
func (s *Service) notify(ctx context.Context, ev Event) {
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			s.logger.Warn("ban notification failed", zap.String("action", ev.Action), zap.String("address", ev.Address), zap.Error(err))
		}
	}
}
