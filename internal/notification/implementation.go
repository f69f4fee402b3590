// internal/notification/implementation.go
package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"librarium/internal/errs"
	"librarium/internal/logging"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var emailTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

const (
	defaultOutboxSize = 256
	defaultListLimit  = 50
)

// service implements the Service interface.
type service struct {
	store   Store
	mailer  Mailer
	logger  *zap.Logger
	tracer  trace.Tracer
	limiter *rate.Limiter
	outbox  chan Message
	now     func() time.Time
	loc     *time.Location
}

// Option configures the notification service.
type Option func(*service)

// WithEmailRate limits outgoing email to perMinute messages.
func WithEmailRate(perMinute int) Option {
	return func(s *service) {
		if perMinute <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
}

// WithOutboxSize sets how many emails may wait for delivery.
func WithOutboxSize(n int) Option {
	return func(s *service) { s.outbox = make(chan Message, n) }
}

// WithLocation sets the time zone whose midnight starts a dedupe day.
func WithLocation(loc *time.Location) Option {
	return func(s *service) { s.loc = loc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new notification service instance.
func NewService(store Store, mailer Mailer, logger *zap.Logger, opts ...Option) Service {
	s := &service{
		store:   store,
		mailer:  mailer,
		logger:  logging.OrNop(logger).Named("notification"),
		tracer:  otel.Tracer("librarium/notification"),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		outbox:  make(chan Message, defaultOutboxSize),
		now:     time.Now,
		loc:     time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify records an in-app notification and queues its email, if any.
func (s *service) Notify(ctx context.Context, n Notice) error {
	ctx, span := s.tracer.Start(ctx, "notification.notify",
		trace.WithAttributes(
			attribute.String("user.id", n.UserID.String()),
			attribute.String("notification.type", string(n.Type)),
		),
	)
	defer span.End()

	if !n.Type.Valid() {
		return fmt.Errorf("%w: unknown notification type %q", errs.ErrInvalidInput, n.Type)
	}

	now := s.now().UTC()
	if n.Dedupe {
		y, m, d := now.In(s.loc).Date()
		since := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
		seen, err := s.store.HasNotificationSince(ctx, n.UserID, n.Type, n.Ref, since)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("check earlier %s notice: %w", n.Type, err)
		}
		if seen {
			span.SetAttributes(attribute.Bool("notification.suppressed", true))
			return ErrSuppressed
		}
	}

	record := &Notification{
		ID:        uuid.New(),
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		CreatedAt: now,
	}
	if n.Ref != uuid.Nil {
		record.Ref = uuid.NullUUID{UUID: n.Ref, Valid: true}
	}
	if err := s.store.InsertNotification(ctx, record); err != nil {
		span.RecordError(err)
		return fmt.Errorf("insert notification: %w", err)
	}

	if n.Email != nil {
		if err := s.queueEmail(ctx, n.UserID, *n.Email); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

func (s *service) queueEmail(ctx context.Context, userID uuid.UUID, e Email) error {
	to, err := s.store.Recipient(ctx, userID)
	if err != nil {
		return fmt.Errorf("look up recipient %s: %w", userID, err)
	}
	if to.Email == "" {
		s.logger.Debug("recipient has no email address", zap.String("user_id", userID.String()))
		return nil
	}

	data := map[string]any{"Name": to.Name}
	for k, v := range e.Data {
		data[k] = v
	}
	msg, err := render(e.Template, to.Email, data)
	if err != nil {
		return err
	}

	select {
	case s.outbox <- msg:
	default:
		s.logger.Warn("email outbox full, dropping message",
			zap.String("template", e.Template),
			zap.String("user_id", userID.String()),
		)
	}
	return nil
}

func render(name, to string, data map[string]any) (Message, error) {
	var subject, body bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&subject, name+".subject", data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := emailTemplates.ExecuteTemplate(&body, name+".body", data); err != nil {
		return Message{}, fmt.Errorf("render %s body: %w", name, err)
	}
	return Message{
		To:      to,
		Subject: strings.TrimSpace(subject.String()),
		Body:    strings.TrimSpace(body.String()),
	}, nil
}

// Run delivers queued emails at the configured rate.
func (s *service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return nil
		case msg := <-s.outbox:
			if err := s.limiter.Wait(ctx); err != nil {
				s.deliver(context.WithoutCancel(ctx), msg)
				s.flush()
				return nil
			}
			s.deliver(ctx, msg)
		}
	}
}

func (s *service) flush() {
	for {
		select {
		case msg := <-s.outbox:
			s.deliver(context.Background(), msg)
		default:
			return
		}
	}
}

func (s *service) deliver(ctx context.Context, msg Message) {
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("failed to send email",
			zap.String("to", msg.To),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
	}
}

// List returns the newest notifications of a user.
func (s *service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]*Notification, error) {
	ctx, span := s.tracer.Start(ctx, "notification.list",
		trace.WithAttributes(attribute.String("user.id", userID.String())),
	)
	defer span.End()

	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	items, err := s.store.ListNotifications(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications of %s: %w", userID, err)
	}
	return items, nil
}

// UnreadCount returns how many notifications the user has not read.
func (s *service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications of %s: %w", userID, err)
	}
	return n, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.store.MarkRead(ctx, userID, id); err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead marks every notification of the user as read.
func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications of %s read: %w", userID, err)
	}
	return n, nil
}
