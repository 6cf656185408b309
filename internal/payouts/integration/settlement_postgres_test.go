package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	payoutapp "qxlog/internal/payouts/application"
	payout "qxlog/internal/payouts/domain"
	payoutrepo "qxlog/internal/payouts/infrastructure/postgres"
	pricingapp "qxlog/internal/pricing/application"
	pricing "qxlog/internal/pricing/domain"
	pricingrepo "qxlog/internal/pricing/infrastructure/postgres"
	"qxlog/internal/procedures/adapters/users"
	procedureapp "qxlog/internal/procedures/application"
	procedure "qxlog/internal/procedures/domain"
	procedurerepo "qxlog/internal/procedures/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const instrumentistID = "it-instrumentist"

type env struct {
	db         *sql.DB
	pricing    *pricingapp.SettingService
	procedures *procedureapp.Service
	settlement *payoutapp.SettlementService
	payouts    *payoutrepo.Repository
}

func setup(t *testing.T) env {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := applyMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM payout_items WHERE payout_batch_id IN (SELECT id FROM payout_batches WHERE instrumentist_id = $1)", instrumentistID)
	_, _ = db.ExecContext(ctx, "UPDATE procedures SET payout_batch_id = NULL, paid_at = NULL, status = 'void' WHERE instrumentist_id = $1", instrumentistID)
	_, _ = db.ExecContext(ctx, "DELETE FROM payout_batches WHERE instrumentist_id = $1", instrumentistID)
	_, _ = db.ExecContext(ctx, "DELETE FROM procedures WHERE instrumentist_id = $1", instrumentistID)
	if _, err := db.ExecContext(ctx, `
INSERT INTO users (id, name, pay_scheme_enabled) VALUES ($1, 'Integration', TRUE)
ON CONFLICT (id) DO UPDATE SET pay_scheme_enabled = TRUE`, instrumentistID); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	pricingSvc, err := pricingapp.NewSettingService(pricingrepo.NewSettingRepository(db), users.NewDirectory(db), nil, nil)
	if err != nil {
		t.Fatalf("pricing service: %v", err)
	}
	if _, err := pricingSvc.Update(ctx, pricing.DefaultSetting(), "integration"); err != nil {
		t.Fatalf("reset pricing: %v", err)
	}
	procSvc, err := procedureapp.NewService(procedurerepo.NewRepository(db), pricingSvc)
	if err != nil {
		t.Fatalf("procedure service: %v", err)
	}
	repo := payoutrepo.NewRepository(db)
	settlement, err := payoutapp.NewSettlementService(repo, payoutapp.WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("settlement service: %v", err)
	}
	return env{db: db, pricing: pricingSvc, procedures: procSvc, settlement: settlement, payouts: repo}
}

func (e env) create(t *testing.T, start, end string, video bool) string {
	t.Helper()
	p, err := e.procedures.Create(context.Background(), procedureapp.CreateCommand{
		InstrumentistID: instrumentistID,
		Details: procedure.Details{
			ProcedureDate:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			StartTime:      start,
			EndTime:        end,
			PatientName:    "Integration Patient",
			ProcedureType:  "Colectomy",
			IsVideosurgery: video,
			Doctor:         procedure.Participant{Name: "Dr. Free Text"},
		},
		Actor: "integration",
	})
	if err != nil {
		t.Fatalf("create procedure: %v", err)
	}
	return p.ID
}

func TestSettlement_ConcurrentOverlapPostgres(t *testing.T) {
	e := setup(t)
	ids := []string{e.create(t, "08:00", "09:00", false), e.create(t, "23:00", "01:00", false)}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		errs  []error
		wins  []*payout.Batch
		start = make(chan struct{})
	)
	for _, operator := range []string{"op-a", "op-b"} {
		wg.Add(1)
		go func(operator string) {
			defer wg.Done()
			<-start
			batch, _, err := e.settlement.Settle(context.Background(), payoutapp.SettleCommand{
				InstrumentistID: instrumentistID,
				OperatorID:      operator,
				ProcedureIDs:    ids,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			wins = append(wins, batch)
		}(operator)
	}
	close(start)
	wg.Wait()

	if len(wins) != 1 || len(errs) != 1 || !errors.Is(errs[0], payout.ErrStaleSelection) {
		t.Fatalf("wins=%d errs=%v, want one win and one stale selection", len(wins), errs)
	}
	if wins[0].TotalAmount.StringFixed(2) != "550.00" {
		t.Fatalf("total=%s, want 550.00", wins[0].TotalAmount.StringFixed(2))
	}

	batch, items, err := e.settlement.Items(context.Background(), wins[0].ID)
	if err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if batch.ItemCount != 2 || len(items) != 2 {
		t.Fatalf("item count=%d items=%d", batch.ItemCount, len(items))
	}
	for _, id := range ids {
		p, err := e.procedures.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get procedure: %v", err)
		}
		if p.Status != procedure.StatusPaid || p.PayoutBatchID != batch.ID || p.PaidAt.IsZero() {
			t.Fatalf("procedure %s not paid: %+v", id, p)
		}
	}
}

func TestSettlement_RollbackOnItemFailurePostgres(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	ids := []string{
		e.create(t, "08:00", "09:00", false),
		e.create(t, "09:00", "10:00", false),
		e.create(t, "10:00", "11:00", false),
	}
	sort.Strings(ids)

	_, _, err := e.payouts.Settle(ctx, instrumentistID, ids, func(locked []procedure.Procedure) (*payout.Batch, []payout.Item, error) {
		batch, items, err := payout.BuildBatch("it-batch-fail", instrumentistID, "op", time.Now().UTC(), locked, func() string { return "it-item" })
		return batch, items, err
	})
	if err == nil {
		t.Fatalf("expected duplicate item id failure")
	}

	var batches, items int
	_ = e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payout_batches WHERE id = 'it-batch-fail'").Scan(&batches)
	_ = e.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM payout_items WHERE payout_batch_id = 'it-batch-fail'").Scan(&items)
	if batches != 0 || items != 0 {
		t.Fatalf("batches=%d items=%d, want none", batches, items)
	}
	pending, err := e.procedures.List(ctx, procedure.Filter{InstrumentistID: instrumentistID, Status: procedure.StatusPending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("pending=%d, want 3", len(pending))
	}
}

func TestSettlement_SnapshotFrozenPostgres(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	id := e.create(t, "23:00", "00:00", false)

	batch, _, err := e.settlement.Settle(ctx, payoutapp.SettleCommand{InstrumentistID: instrumentistID, OperatorID: "op", ProcedureIDs: []string{id}})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	updated := pricing.DefaultSetting()
	updated.NightRate = decimal.NewFromInt(999)
	if _, err := e.pricing.Update(ctx, updated, "integration"); err != nil {
		t.Fatalf("pricing update: %v", err)
	}

	voucher, items, err := e.settlement.Voucher(ctx, batch.ID)
	if err != nil {
		t.Fatalf("voucher: %v", err)
	}
	if items[0].Snapshot.PricingSnapshot.Rate.StringFixed(2) != "350.00" || voucher.Total.StringFixed(2) != "350.00" {
		t.Fatalf("frozen snapshot changed: %+v", items[0].Snapshot.PricingSnapshot)
	}
	if _, err := e.procedures.Update(ctx, id, procedure.Details{}, "integration"); !errors.Is(err, procedure.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for paid edit, got %v", err)
	}
}

func applyMigrations(db *sql.DB) error {
	paths, err := filepath.Glob(filepath.Join(projectRoot(), "migrations", "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(paths)
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(content)); err != nil {
			return err
		}
	}
	return nil
}

func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(filepath.Join(dir, "..", "..", ".."))
}
