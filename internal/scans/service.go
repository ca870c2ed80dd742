// Package scans turns field-worker intents (scan, correct, remove a code) into
// queued mutations and projects the queue back into display records.
package scans

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/width"

	"fieldscan/internal/logging"
	"fieldscan/internal/queue"
	"fieldscan/internal/services"
)

// Queue is the subset of queue.Store the service needs.
type Queue interface {
	AppendWith(ctx context.Context, kind queue.Kind, payload queue.Payload, opts queue.AppendOptions) (*queue.Mutation, error)
	ListForRow(ctx context.Context, rowID string) ([]*queue.Mutation, error)
}

// Clock supplies the current time.
type Clock func() time.Time

// Option customizes a Service.
type Option func(*Service)

// WithDefaultUser stamps requests that carry no user id.
func WithDefaultUser(userID string) Option {
	return func(s *Service) {
		s.defaultUser = strings.TrimSpace(userID)
	}
}

// Service is the mutation queuing service.
type Service struct {
	queue       Queue
	now         Clock
	logger      *slog.Logger
	defaultUser string
}

// New constructs a Service. A nil clock uses time.Now.
func New(q Queue, clock Clock, logger *slog.Logger, opts ...Option) *Service {
	if clock == nil {
		clock = time.Now
	}
	s := &Service{
		queue:  q,
		now:    clock,
		logger: logging.NewComponentLogger(logger, "scans"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddRequest describes a newly scanned code.
type AddRequest struct {
	Code       string
	RowID      string
	OrderInRow int
	UserID     string
	Timestamp  *time.Time
	Latitude   *float64
	Longitude  *float64
	// MutationID pins the mutation id, making a repeated request a no-op
	// while the first is still queued and a remote duplicate once synced.
	MutationID string
}

// UpdateRequest describes a correction of a record's code.
type UpdateRequest struct {
	RecordID  string
	RowID     string
	OldCode   string
	NewCode   string
	Timestamp *time.Time
	UserID    string
}

// DeleteRequest describes the removal of a record.
type DeleteRequest struct {
	RecordID  string
	RowID     string
	Code      string
	Timestamp *time.Time
	UserID    string
}

// QueueAdd appends an ADD mutation. The mutation id becomes the remote record id.
func (s *Service) QueueAdd(ctx context.Context, req AddRequest) (*queue.Mutation, error) {
	code := NormalizeCode(req.Code)
	rowID := strings.TrimSpace(req.RowID)
	switch {
	case code == "":
		return nil, invalid("queue add", "code is required")
	case rowID == "":
		return nil, invalid("queue add", "row id is required")
	case req.OrderInRow < 0:
		return nil, invalid("queue add", "order in row must not be negative")
	}
	if err := validateCoordinates(req.Latitude, req.Longitude); err != nil {
		return nil, err
	}

	payload := queue.Payload{
		Code:       code,
		RowID:      rowID,
		OrderInRow: req.OrderInRow,
		UserID:     s.user(req.UserID),
		Latitude:   copyFloat(req.Latitude),
		Longitude:  copyFloat(req.Longitude),
	}
	return s.enqueue(ctx, queue.KindAdd, payload, req.Timestamp, req.MutationID)
}

// QueueUpdate appends an UPDATE mutation replacing a record's code.
func (s *Service) QueueUpdate(ctx context.Context, req UpdateRequest) (*queue.Mutation, error) {
	newCode := NormalizeCode(req.NewCode)
	switch {
	case strings.TrimSpace(req.RecordID) == "":
		return nil, invalid("queue update", "record id is required")
	case strings.TrimSpace(req.RowID) == "":
		return nil, invalid("queue update", "row id is required")
	case newCode == "":
		return nil, invalid("queue update", "new code is required")
	}

	payload := queue.Payload{
		RowID:      strings.TrimSpace(req.RowID),
		OrderInRow: queue.OrderSentinel,
		UserID:     s.user(req.UserID),
		RecordID:   strings.TrimSpace(req.RecordID),
		OldCode:    NormalizeCode(req.OldCode),
		NewCode:    newCode,
		Code:       newCode,
	}
	return s.enqueue(ctx, queue.KindUpdate, payload, req.Timestamp, "")
}

// QueueDelete appends a DELETE mutation for a record.
func (s *Service) QueueDelete(ctx context.Context, req DeleteRequest) (*queue.Mutation, error) {
	switch {
	case strings.TrimSpace(req.RecordID) == "":
		return nil, invalid("queue delete", "record id is required")
	case strings.TrimSpace(req.RowID) == "":
		return nil, invalid("queue delete", "row id is required")
	}

	payload := queue.Payload{
		Code:       NormalizeCode(req.Code),
		RowID:      strings.TrimSpace(req.RowID),
		OrderInRow: queue.OrderSentinel,
		UserID:     s.user(req.UserID),
		RecordID:   strings.TrimSpace(req.RecordID),
	}
	return s.enqueue(ctx, queue.KindDelete, payload, req.Timestamp, "")
}

func (s *Service) enqueue(ctx context.Context, kind queue.Kind, payload queue.Payload, ts *time.Time, id string) (*queue.Mutation, error) {
	ctx = services.WithRowID(ctx, payload.RowID)
	logger := logging.WithContext(ctx, s.logger)

	when := s.now()
	if ts != nil && !ts.IsZero() {
		when = *ts
	}
	payload.Timestamp = queue.FormatTimestamp(when)

	m, err := s.queue.AppendWith(ctx, kind, payload, queue.AppendOptions{ID: id, AssignSequence: true})
	if err != nil {
		logging.ErrorWithContext(logger, "mutation not recorded", "queue_unavailable",
			logging.String(logging.FieldMutationKind, string(kind)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
		return nil, err
	}
	attrs := append(logging.Mutation(string(kind), m.ID), logging.Int64("local_sequence", m.Payload.LocalSequence))
	logger.Info("mutation queued", logging.Args(attrs...)...)
	return m, nil
}

func (s *Service) user(requested string) string {
	if trimmed := strings.TrimSpace(requested); trimmed != "" {
		return trimmed
	}
	return s.defaultUser
}

// NormalizeCode trims whitespace, folds full-width characters produced by some
// scanner keyboards to their ASCII forms, and drops control characters.
func NormalizeCode(code string) string {
	folded := width.Fold.String(strings.TrimSpace(code))
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, folded))
}

func validateCoordinates(lat, lon *float64) error {
	if lat != nil && (math.IsNaN(*lat) || *lat < -90 || *lat > 90) {
		return invalid("queue add", fmt.Sprintf("latitude %v out of range", *lat))
	}
	if lon != nil && (math.IsNaN(*lon) || *lon < -180 || *lon > 180) {
		return invalid("queue add", fmt.Sprintf("longitude %v out of range", *lon))
	}
	return nil
}

func invalid(operation, message string) error {
	return services.Wrap(services.ErrValidation, "scans", operation, message, nil)
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
