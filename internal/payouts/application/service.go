package application

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"qxlog/internal/observability/logging"
	"qxlog/internal/observability/metrics"
	payout "qxlog/internal/payouts/domain"
	procedure "qxlog/internal/procedures/domain"
)

var tracer = otel.Tracer("qxlog/payouts")

// DefaultSettlementTimeout bounds a settlement transaction when none is configured.
const DefaultSettlementTimeout = 10 * time.Second

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Option configures a SettlementService.
type Option func(*SettlementService)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(s *SettlementService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator overrides batch and item id generation.
func WithIDGenerator(next func() string) Option {
	return func(s *SettlementService) {
		if next != nil {
			s.newID = next
		}
	}
}

// WithTimeout bounds each settlement transaction.
func WithTimeout(timeout time.Duration) Option {
	return func(s *SettlementService) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *SettlementService) {
		s.logger = logging.OrDiscard(logger)
	}
}

// SettlementService converts pending procedures into payout batches.
type SettlementService struct {
	repo    payout.Repository
	clock   Clock
	newID   func() string
	timeout time.Duration
	logger  logrus.FieldLogger
}

// NewSettlementService constructs the service.
func NewSettlementService(repo payout.Repository, opts ...Option) (*SettlementService, error) {
	if repo == nil {
		return nil, errors.New("settlement service: nil repository")
	}
	s := &SettlementService{
		repo:    repo,
		clock:   systemClock{},
		newID:   uuid.NewString,
		timeout: DefaultSettlementTimeout,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// SettleCommand selects procedures to pay.
type SettleCommand struct {
	InstrumentistID string
	OperatorID      string
	ProcedureIDs    []string
}

// Settle pays the selected procedures in one batch or fails with no effect.
func (s *SettlementService) Settle(ctx context.Context, cmd SettleCommand) (*payout.Batch, []payout.Item, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "payouts.settle")
	defer span.End()

	ids := uniqueIDs(cmd.ProcedureIDs)
	span.SetAttributes(
		attribute.String("payout.instrumentist_id", cmd.InstrumentistID),
		attribute.Int("payout.selected", len(ids)),
	)
	if strings.TrimSpace(cmd.InstrumentistID) == "" || strings.TrimSpace(cmd.OperatorID) == "" {
		metrics.ObserveSettlement(metrics.ResultError, time.Since(start))
		return nil, nil, payout.ErrInvalidBatch
	}
	if len(ids) == 0 {
		metrics.ObserveSettlement(metrics.ResultError, time.Since(start))
		return nil, nil, payout.ErrEmptySelection
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	batchID := s.newID()
	paidAt := s.clock.Now()
	batch, items, err := s.repo.Settle(ctx, cmd.InstrumentistID, ids, func(locked []procedure.Procedure) (*payout.Batch, []payout.Item, error) {
		return payout.BuildBatch(batchID, cmd.InstrumentistID, cmd.OperatorID, paidAt, locked, s.newID)
	})
	if err != nil {
		result := metrics.ResultError
		if errors.Is(err, payout.ErrStaleSelection) {
			result = metrics.ResultStale
		}
		metrics.ObserveSettlement(result, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WithError(err).WithFields(logrus.Fields{
			"instrumentist_id": cmd.InstrumentistID,
			"operator_id":      cmd.OperatorID,
			"selected":         len(ids),
		}).Warn("settlement aborted")
		return nil, nil, err
	}

	metrics.ObserveSettlement(metrics.ResultSuccess, time.Since(start))
	metrics.ObserveSettlementItems(len(items))
	span.SetAttributes(attribute.String("payout.batch_id", batch.ID))
	s.logger.WithFields(logrus.Fields{
		"batch_id":         batch.ID,
		"instrumentist_id": batch.InstrumentistID,
		"operator_id":      batch.PaidByID,
		"items":            len(items),
		"total":            batch.TotalAmount.StringFixed(2),
	}).Info("payout batch settled")
	return batch, items, nil
}

// Void flips an active batch to void. Its procedures stay paid.
func (s *SettlementService) Void(ctx context.Context, batchID, reason, actor string) (*payout.Batch, error) {
	batch, err := s.Get(ctx, batchID)
	if err != nil {
		metrics.IncBatchVoid(metrics.ResultError)
		return nil, err
	}
	if err := batch.Void(reason, s.clock.Now()); err != nil {
		metrics.IncBatchVoid(metrics.ResultError)
		return nil, err
	}
	if err := s.repo.Void(ctx, batch); err != nil {
		metrics.IncBatchVoid(metrics.ResultError)
		return nil, err
	}
	metrics.IncBatchVoid(metrics.ResultSuccess)
	s.logger.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"actor":    actor,
		"reason":   batch.VoidReason,
	}).Info("payout batch voided")
	return batch, nil
}

// Get loads a batch.
func (s *SettlementService) Get(ctx context.Context, batchID string) (*payout.Batch, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, payout.ErrBatchNotFound
	}
	batch, err := s.repo.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, payout.ErrBatchNotFound
	}
	return batch, nil
}

// Items loads a batch together with its items.
func (s *SettlementService) Items(ctx context.Context, batchID string) (*payout.Batch, []payout.Item, error) {
	batch, err := s.Get(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	items, err := s.repo.Items(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	return batch, items, nil
}

// List returns batches matching filter.
func (s *SettlementService) List(ctx context.Context, filter payout.Filter) ([]payout.Batch, error) {
	return s.repo.List(ctx, filter)
}

// Voucher summarizes a batch from its frozen item snapshots.
func (s *SettlementService) Voucher(ctx context.Context, batchID string) (payout.Voucher, []payout.Item, error) {
	batch, items, err := s.Items(ctx, batchID)
	if err != nil {
		return payout.Voucher{}, nil, err
	}
	return payout.SummarizeVoucher(*batch, items), items, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
