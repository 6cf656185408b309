package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	payout "qxlog/internal/payouts/domain"
	procedure "qxlog/internal/procedures/domain"
	procedurepg "qxlog/internal/procedures/infrastructure/postgres"
)

// Repository persists payout batches and settles procedures in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Settle runs the settlement transaction.
// Rows are locked in id order so overlapping settlements queue behind each other
// instead of deadlocking; the loser re-reads the rows as paid and matches fewer.
func (r *Repository) Settle(ctx context.Context, instrumentistID string, procedureIDs []string, build payout.BuildFunc) (*payout.Batch, []payout.Item, error) {
	if r == nil || r.db == nil {
		return nil, nil, errors.New("payout repo: nil db")
	}
	if build == nil {
		return nil, nil, errors.New("payout repo: nil build func")
	}
	if len(procedureIDs) == 0 {
		return nil, nil, payout.ErrEmptySelection
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	locked, err := lockPending(ctx, tx, instrumentistID, procedureIDs)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}
	if len(locked) != len(procedureIDs) {
		_ = tx.Rollback()
		return nil, nil, fmt.Errorf("%w: %d of %d procedures still pending", payout.ErrStaleSelection, len(locked), len(procedureIDs))
	}

	batch, items, err := build(locked)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}
	if err := insertBatch(ctx, tx, batch); err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}
	for _, item := range items {
		if err := insertItem(ctx, tx, item, batch.PaidAt); err != nil {
			_ = tx.Rollback()
			return nil, nil, err
		}
	}
	res, err := tx.ExecContext(ctx, `
UPDATE procedures
SET status = 'paid', payout_batch_id = $1, paid_at = $2, updated_at = $2
WHERE id = ANY($3) AND status = 'pending'`,
		batch.ID, batch.PaidAt.UTC(), procedureIDs,
	)
	if err != nil {
		_ = tx.Rollback()
		return nil, nil, err
	}
	if affected, err := res.RowsAffected(); err != nil || affected != int64(len(locked)) {
		_ = tx.Rollback()
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, payout.ErrStaleSelection
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return batch, items, nil
}

func lockPending(ctx context.Context, tx *sql.Tx, instrumentistID string, procedureIDs []string) ([]procedure.Procedure, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT `+procedurepg.Columns()+`
FROM procedures
WHERE instrumentist_id = $1 AND status = 'pending' AND id = ANY($2)
ORDER BY id
FOR UPDATE`, instrumentistID, procedureIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locked []procedure.Procedure
	for rows.Next() {
		p, err := procedurepg.ScanProcedure(rows)
		if err != nil {
			return nil, err
		}
		locked = append(locked, *p)
	}
	return locked, rows.Err()
}

func insertBatch(ctx context.Context, tx *sql.Tx, batch *payout.Batch) error {
	if batch == nil {
		return payout.ErrInvalidBatch
	}
	_, err := tx.ExecContext(ctx, `
INSERT INTO payout_batches (
	id, instrumentist_id, paid_by_id, paid_at, total_amount, status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		batch.ID,
		batch.InstrumentistID,
		batch.PaidByID,
		batch.PaidAt.UTC(),
		batch.TotalAmount.StringFixed(2),
		string(batch.Status),
		batch.PaidAt.UTC(),
	)
	return err
}

func insertItem(ctx context.Context, tx *sql.Tx, item payout.Item, createdAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO payout_items (id, payout_batch_id, procedure_id, amount, snapshot, created_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
		item.ID,
		item.BatchID,
		item.ProcedureID,
		item.Amount.StringFixed(2),
		item.Snapshot,
		createdAt.UTC(),
	)
	return err
}

// Void stores the void state of a batch that is still active.
func (r *Repository) Void(ctx context.Context, batch *payout.Batch) error {
	if r == nil || r.db == nil {
		return errors.New("payout repo: nil db")
	}
	if batch == nil {
		return payout.ErrInvalidBatch
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE payout_batches SET status = 'void', void_reason = $2, voided_at = $3
WHERE id = $1 AND status = 'active'`,
		batch.ID, batch.VoidReason, batch.VoidedAt.UTC(),
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	current, err := r.Get(ctx, batch.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return payout.ErrBatchNotFound
	}
	return payout.ErrBatchVoided
}

const batchColumns = `
	b.id, b.instrumentist_id, b.paid_by_id, b.paid_at, b.total_amount, b.status,
	b.void_reason, b.voided_at,
	(SELECT COUNT(*) FROM payout_items i WHERE i.payout_batch_id = b.id)`

// Get loads a batch; nil when not found.
func (r *Repository) Get(ctx context.Context, id string) (*payout.Batch, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("payout repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM payout_batches b WHERE b.id = $1`, id)
	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return batch, nil
}

// Items loads the items of a batch in procedure order.
func (r *Repository) Items(ctx context.Context, batchID string) ([]payout.Item, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("payout repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, payout_batch_id, procedure_id, amount, snapshot
FROM payout_items
WHERE payout_batch_id = $1
ORDER BY procedure_id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []payout.Item
	for rows.Next() {
		var item payout.Item
		if err := rows.Scan(&item.ID, &item.BatchID, &item.ProcedureID, &item.Amount, &item.Snapshot); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// List returns batches newest first.
func (r *Repository) List(ctx context.Context, filter payout.Filter) ([]payout.Batch, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("payout repo: nil db")
	}
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.InstrumentistID != "" {
		add("b.instrumentist_id = $%d", filter.InstrumentistID)
	}
	if filter.Status != "" {
		add("b.status = $%d", string(filter.Status))
	}
	if !filter.From.IsZero() {
		add("b.paid_at >= $%d", filter.From.UTC())
	}
	if !filter.To.IsZero() {
		add("b.paid_at <= $%d", filter.To.UTC())
	}
	query := `SELECT ` + batchColumns + ` FROM payout_batches b`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY b.paid_at DESC, b.id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []payout.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *batch)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(row scanner) (*payout.Batch, error) {
	var (
		batch      payout.Batch
		status     string
		voidReason sql.NullString
		voidedAt   sql.NullTime
	)
	if err := row.Scan(
		&batch.ID,
		&batch.InstrumentistID,
		&batch.PaidByID,
		&batch.PaidAt,
		&batch.TotalAmount,
		&status,
		&voidReason,
		&voidedAt,
		&batch.ItemCount,
	); err != nil {
		return nil, err
	}
	batch.Status = payout.Status(status)
	batch.PaidAt = batch.PaidAt.UTC()
	batch.VoidReason = voidReason.String
	if voidedAt.Valid {
		batch.VoidedAt = voidedAt.Time.UTC()
	}
	return &batch, nil
}
