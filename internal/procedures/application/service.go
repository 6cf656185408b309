package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"qxlog/internal/observability/logging"
	"qxlog/internal/observability/metrics"
	pricing "qxlog/internal/pricing/domain"
	procedure "qxlog/internal/procedures/domain"
)

var tracer = otel.Tracer("qxlog/procedures")

// PricingSource provides the live pricing setting and instrumentist flags.
type PricingSource interface {
	Current(ctx context.Context) (pricing.Setting, error)
	Instrumentist(ctx context.Context, id string) (pricing.Instrumentist, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides procedure id generation.
func WithIDGenerator(next func() string) Option {
	return func(s *Service) {
		if next != nil {
			s.newID = next
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = logging.OrDiscard(logger)
	}
}

// Service runs procedure ledger operations.
type Service struct {
	repo    procedure.Repository
	pricing PricingSource
	clock   Clock
	newID   func() string
	logger  logrus.FieldLogger
}

// NewService constructs a procedure service.
func NewService(repo procedure.Repository, source PricingSource, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("procedure service: nil repository")
	}
	if source == nil {
		return nil, errors.New("procedure service: nil pricing source")
	}
	s := &Service{
		repo:    repo,
		pricing: source,
		clock:   systemClock{},
		newID:   uuid.NewString,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// CreateCommand carries a new procedure.
type CreateCommand struct {
	InstrumentistID string
	Details         procedure.Details
	Actor           string
}

// Create prices and stores a new pending procedure.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*procedure.Procedure, error) {
	ctx, span := tracer.Start(ctx, "procedures.create")
	defer span.End()

	duration, quote, err := s.price(ctx, cmd.InstrumentistID, cmd.Details)
	if err != nil {
		metrics.IncProcedureOp("create", metrics.ResultError)
		return nil, err
	}
	p, err := procedure.New(s.newID(), cmd.InstrumentistID, cmd.Details, duration, quote, cmd.Actor, s.clock.Now())
	if err != nil {
		metrics.IncProcedureOp("create", metrics.ResultError)
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		metrics.IncProcedureOp("create", metrics.ResultError)
		return nil, err
	}
	metrics.IncProcedureOp("create", metrics.ResultSuccess)
	metrics.IncPricingRule(string(quote.Snapshot.Rule))
	span.SetAttributes(attribute.String("procedure.id", p.ID), attribute.String("pricing.rule", string(quote.Snapshot.Rule)))
	s.logger.WithFields(logrus.Fields{
		"procedure_id":     p.ID,
		"instrumentist_id": p.InstrumentistID,
		"rule":             quote.Snapshot.Rule,
		"amount":           p.CalculatedAmount.StringFixed(2),
	}).Info("procedure created")
	return p, nil
}

// Update replaces the details of a pending procedure and reprices it.
func (s *Service) Update(ctx context.Context, id string, details procedure.Details, actor string) (*procedure.Procedure, error) {
	ctx, span := tracer.Start(ctx, "procedures.update")
	defer span.End()

	p, err := s.Get(ctx, id)
	if err != nil {
		metrics.IncProcedureOp("update", metrics.ResultError)
		return nil, err
	}
	if !procedure.ValidTransition(procedure.ActionEdit, p.Status) {
		metrics.IncProcedureOp("update", metrics.ResultError)
		return nil, procedure.ErrInvalidTransition
	}
	duration, quote, err := s.price(ctx, p.InstrumentistID, details)
	if err != nil {
		metrics.IncProcedureOp("update", metrics.ResultError)
		return nil, err
	}
	if err := p.Reprice(details, duration, quote, s.clock.Now()); err != nil {
		metrics.IncProcedureOp("update", metrics.ResultError)
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		metrics.IncProcedureOp("update", metrics.ResultError)
		return nil, err
	}
	metrics.IncProcedureOp("update", metrics.ResultSuccess)
	metrics.IncPricingRule(string(quote.Snapshot.Rule))
	s.logger.WithFields(logrus.Fields{
		"procedure_id": p.ID,
		"actor":        actor,
		"rule":         quote.Snapshot.Rule,
		"amount":       p.CalculatedAmount.StringFixed(2),
	}).Info("procedure repriced")
	return p, nil
}

// Void marks a pending procedure void.
func (s *Service) Void(ctx context.Context, id, reason, actor string) (*procedure.Procedure, error) {
	ctx, span := tracer.Start(ctx, "procedures.void")
	defer span.End()
	span.SetAttributes(attribute.String("procedure.id", id))

	fail := func(err error) (*procedure.Procedure, error) {
		metrics.IncProcedureOp("void", metrics.ResultError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return fail(err)
	}
	if err := p.Void(reason, s.clock.Now()); err != nil {
		return fail(err)
	}
	if err := s.repo.Void(ctx, p); err != nil {
		return fail(err)
	}
	metrics.IncProcedureOp("void", metrics.ResultSuccess)
	s.logger.WithFields(logrus.Fields{
		"procedure_id": p.ID,
		"actor":        actor,
		"reason":       p.VoidReason,
	}).Info("procedure voided")
	return p, nil
}

// Get loads a procedure by id.
func (s *Service) Get(ctx context.Context, id string) (*procedure.Procedure, error) {
	if strings.TrimSpace(id) == "" {
		return nil, procedure.ErrProcedureNotFound
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, procedure.ErrProcedureNotFound
	}
	return p, nil
}

// List returns procedures matching filter ordered by date and start time.
func (s *Service) List(ctx context.Context, filter procedure.Filter) ([]procedure.Procedure, error) {
	return s.repo.List(ctx, filter)
}

// PendingSummary is the amount still owed to an instrumentist.
type PendingSummary struct {
	InstrumentistID string
	Count           int
	Total           decimal.Decimal
}

// Pending sums the pending procedures of an instrumentist.
func (s *Service) Pending(ctx context.Context, instrumentistID string) (PendingSummary, error) {
	items, err := s.repo.List(ctx, procedure.Filter{InstrumentistID: instrumentistID, Status: procedure.StatusPending})
	if err != nil {
		return PendingSummary{}, err
	}
	summary := PendingSummary{InstrumentistID: instrumentistID, Total: decimal.Zero}
	for _, item := range items {
		summary.Count++
		summary.Total = summary.Total.Add(item.CalculatedAmount)
	}
	return summary, nil
}

func (s *Service) price(ctx context.Context, instrumentistID string, details procedure.Details) (int, pricing.Quote, error) {
	duration, err := details.Duration()
	if err != nil {
		return 0, pricing.Quote{}, err
	}
	instrumentist, err := s.pricing.Instrumentist(ctx, instrumentistID)
	if err != nil {
		return 0, pricing.Quote{}, err
	}
	setting, err := s.pricing.Current(ctx)
	if err != nil {
		return 0, pricing.Quote{}, err
	}
	quote, err := pricing.Calculate(setting, pricing.Input{
		Instrumentist:   instrumentist,
		IsVideosurgery:  details.IsVideosurgery,
		DurationMinutes: duration,
		StartTime:       details.StartTime,
		EndTime:         details.EndTime,
	})
	if err != nil {
		return 0, pricing.Quote{}, err
	}
	return duration, quote, nil
}
