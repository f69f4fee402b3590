// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"librarium/internal/errs"
	"librarium/internal/logging"
	"librarium/internal/notification"
	"librarium/internal/validation"
)

// service implements the Service interface.
type service struct {
	store       Store
	logger      *zap.Logger
	tracer      trace.Tracer
	rateLimiter *rate.Limiter
	sink        notification.Sink
	now         func() time.Time
}

// Option configures the membership service.
type Option func(*service)

// WithRegistrationLimit allows perMinute registrations with an equal burst.
func WithRegistrationLimit(perMinute int) Option {
	return func(s *service) {
		if perMinute <= 0 {
			s.rateLimiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		s.rateLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
}

// WithNotifier sends a welcome notice to every new member.
func WithNotifier(sink notification.Sink) Option {
	return func(s *service) { s.sink = sink }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new membership service instance.
func NewService(store Store, logger *zap.Logger, opts ...Option) Service {
	s := &service{
		store:       store,
		logger:      logging.OrNop(logger).Named("membership"),
		tracer:      otel.Tracer("librarium/membership"),
		rateLimiter: rate.NewLimiter(rate.Every(1*time.Minute), 5), // 5 requests per minute
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates the membership profile of a user.
func (s *service) Register(ctx context.Context, req Registration) (*Profile, error) {
	ctx, span := s.tracer.Start(ctx, "membership.register",
		trace.WithAttributes(attribute.String("user.id", req.UserID.String())),
	)
	defer span.End()

	if !s.rateLimiter.Allow() {
		return nil, fmt.Errorf("register %s: %w", req.UserID, errs.ErrRateLimited)
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	tier := req.Tier
	if tier == "" {
		tier = TierBasic
	}
	now := s.now().UTC()
	p := &Profile{
		UserID:      req.UserID,
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Name:        strings.TrimSpace(req.Name),
		TotalFines:  decimal.Zero,
		Active:      true,
		MemberSince: now,
		UpdatedAt:   now,
	}
	if err := p.ChangeTier(tier); err != nil {
		return nil, err
	}

	if err := s.store.InsertProfile(ctx, p); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}

	s.logger.Info("member registered",
		zap.String("user_id", p.UserID.String()),
		zap.String("tier", string(p.Tier)),
	)
	s.welcome(ctx, p)
	return p, nil
}

func (s *service) welcome(ctx context.Context, p *Profile) {
	if s.sink == nil {
		return
	}
	err := s.sink.Notify(ctx, notification.Notice{
		UserID:  p.UserID,
		Type:    notification.TypeGeneral,
		Title:   "Welcome to the Library",
		Message: fmt.Sprintf("Your %s membership is active. You can borrow up to %d books at a time.", p.Tier, p.MaxBooksAllowed),
		Link:    "/me/profile",
		Email: &notification.Email{
			Template: notification.TemplateWelcome,
			Data:     map[string]any{"MaxBooks": p.MaxBooksAllowed},
		},
	})
	if err != nil {
		s.logger.Warn("failed to send welcome notice", zap.String("user_id", p.UserID.String()), zap.Error(err))
	}
}

// GetProfile retrieves the profile of a user.
func (s *service) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	ctx, span := s.tracer.Start(ctx, "membership.get_profile",
		trace.WithAttributes(attribute.String("user.id", userID.String())),
	)
	defer span.End()

	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", userID, err)
	}
	return p, nil
}

// UpdateTier changes the tier and borrowing limit of a user. A tier whose
// limit is below the user's open borrows is refused.
func (s *service) UpdateTier(ctx context.Context, userID uuid.UUID, tier Tier) (*Profile, error) {
	ctx, span := s.tracer.Start(ctx, "membership.update_tier",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.String("tier", string(tier)),
		),
	)
	defer span.End()

	p, err := s.store.ModifyProfileWithLoans(ctx, userID, func(p *Profile, openBorrows int) error {
		if err := p.ChangeTier(tier); err != nil {
			return err
		}
		if openBorrows > p.MaxBooksAllowed {
			return fmt.Errorf("%w: %d open borrows, %s allows %d", ErrTierBelowLoans, openBorrows, tier, p.MaxBooksAllowed)
		}
		p.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update tier of %s: %w", userID, err)
	}

	s.logger.Info("member tier changed",
		zap.String("user_id", userID.String()),
		zap.String("tier", string(p.Tier)),
		zap.Int("max_books_allowed", p.MaxBooksAllowed),
	)
	return p, nil
}

// SetActive suspends or reinstates a membership.
func (s *service) SetActive(ctx context.Context, userID uuid.UUID, active bool) (*Profile, error) {
	ctx, span := s.tracer.Start(ctx, "membership.set_active",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.Bool("active", active),
		),
	)
	defer span.End()

	p, err := s.store.ModifyProfile(ctx, userID, func(p *Profile) error {
		p.Active = active
		p.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set active flag of %s: %w", userID, err)
	}

	s.logger.Info("member activity changed",
		zap.String("user_id", userID.String()),
		zap.Bool("active", p.Active),
	)
	return p, nil
}
