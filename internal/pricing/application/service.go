package application

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"qxlog/internal/observability/logging"
	"qxlog/internal/observability/metrics"
	pricing "qxlog/internal/pricing/domain"
)

var tracer = otel.Tracer("qxlog/pricing")

// SettingRepository persists the singleton pricing setting.
// Get returns nil when no active row exists.
type SettingRepository interface {
	Get(ctx context.Context) (*pricing.Setting, error)
	Save(ctx context.Context, setting pricing.Setting) error
}

// InstrumentistDirectory resolves the pay-scheme flag of an instrumentist.
type InstrumentistDirectory interface {
	GetInstrumentist(ctx context.Context, id string) (*pricing.Instrumentist, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ErrInstrumentistNotFound is returned when the directory has no such instrumentist.
var ErrInstrumentistNotFound = errors.New("pricing: instrumentist not found")

// SettingService manages the pricing setting and runs quotes against it.
type SettingService struct {
	repo      SettingRepository
	directory InstrumentistDirectory
	clock     Clock
	logger    logrus.FieldLogger
}

// NewSettingService constructs the service.
func NewSettingService(repo SettingRepository, directory InstrumentistDirectory, clock Clock, logger logrus.FieldLogger) (*SettingService, error) {
	if repo == nil {
		return nil, errors.New("pricing service: nil repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &SettingService{
		repo:      repo,
		directory: directory,
		clock:     clock,
		logger:    logging.OrDiscard(logger),
	}, nil
}

// EnsureSeeded writes seed when no active setting exists.
func (s *SettingService) EnsureSeeded(ctx context.Context, seed pricing.Setting) error {
	current, err := s.repo.Get(ctx)
	if err != nil {
		return err
	}
	if current != nil {
		return nil
	}
	if err := seed.Validate(); err != nil {
		return err
	}
	seed = seed.Normalized()
	seed.UpdatedBy = "seed"
	seed.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, seed); err != nil {
		return err
	}
	s.logger.WithField("default_rate", seed.DefaultRate.StringFixed(2)).Info("pricing setting seeded")
	return nil
}

// Current returns the active pricing setting.
func (s *SettingService) Current(ctx context.Context) (pricing.Setting, error) {
	current, err := s.repo.Get(ctx)
	if err != nil {
		return pricing.Setting{}, err
	}
	if current == nil {
		return pricing.Setting{}, pricing.ErrSettingNotFound
	}
	return *current, nil
}

// Update validates and replaces the pricing setting.
func (s *SettingService) Update(ctx context.Context, setting pricing.Setting, actor string) (pricing.Setting, error) {
	if err := setting.Validate(); err != nil {
		metrics.IncPricingUpdate(metrics.ResultError)
		return pricing.Setting{}, err
	}
	setting = setting.Normalized()
	setting.UpdatedBy = actor
	setting.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, setting); err != nil {
		metrics.IncPricingUpdate(metrics.ResultError)
		return pricing.Setting{}, err
	}
	metrics.IncPricingUpdate(metrics.ResultSuccess)
	s.logger.WithFields(logrus.Fields{
		"actor":          actor,
		"default_rate":   setting.DefaultRate.StringFixed(2),
		"video_rate":     setting.VideoRate.StringFixed(2),
		"night_rate":     setting.NightRate.StringFixed(2),
		"long_case_rate": setting.LongCaseRate.StringFixed(2),
	}).Info("pricing setting updated")
	return setting, nil
}

// QuoteRequest carries the procedure attributes of a price preview.
type QuoteRequest struct {
	InstrumentistID string
	IsVideosurgery  bool
	ProcedureDate   string
	StartTime       string
	EndTime         string
}

// Quote prices a procedure without persisting anything.
func (s *SettingService) Quote(ctx context.Context, req QuoteRequest) (pricing.Quote, error) {
	ctx, span := tracer.Start(ctx, "pricing.quote")
	defer span.End()

	duration, err := pricing.DurationMinutes(req.ProcedureDate, req.StartTime, req.EndTime)
	if err != nil {
		return pricing.Quote{}, err
	}
	instrumentist, err := s.Instrumentist(ctx, req.InstrumentistID)
	if err != nil {
		return pricing.Quote{}, err
	}
	setting, err := s.Current(ctx)
	if err != nil {
		return pricing.Quote{}, err
	}
	quote, err := pricing.Calculate(setting, pricing.Input{
		Instrumentist:   instrumentist,
		IsVideosurgery:  req.IsVideosurgery,
		DurationMinutes: duration,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
	})
	if err != nil {
		return pricing.Quote{}, err
	}
	span.SetAttributes(attribute.String("pricing.rule", string(quote.Snapshot.Rule)))
	return quote, nil
}

// Instrumentist resolves an instrumentist through the directory.
func (s *SettingService) Instrumentist(ctx context.Context, id string) (pricing.Instrumentist, error) {
	if s.directory == nil {
		return pricing.Instrumentist{}, errors.New("pricing service: nil instrumentist directory")
	}
	if id == "" {
		return pricing.Instrumentist{}, ErrInstrumentistNotFound
	}
	found, err := s.directory.GetInstrumentist(ctx, id)
	if err != nil {
		return pricing.Instrumentist{}, err
	}
	if found == nil {
		return pricing.Instrumentist{}, ErrInstrumentistNotFound
	}
	return *found, nil
}
