package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	procedure "qxlog/internal/procedures/domain"
)

const procedureColumns = `
	id, instrumentist_id, procedure_date, start_time, end_time, duration_minutes,
	patient_name, procedure_type, is_videosurgery,
	doctor_id, doctor_name, circulating_id, circulating_name,
	calculated_amount, pricing_snapshot, status, payout_batch_id, paid_at,
	void_reason, voided_at, created_by, created_at, updated_at`

// Repository persists procedures in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new procedure.
func (r *Repository) Create(ctx context.Context, p *procedure.Procedure) error {
	if r == nil || r.db == nil {
		return errors.New("procedure repo: nil db")
	}
	if p == nil {
		return procedure.ErrNilProcedure
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO procedures (`+procedureColumns+`
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		p.ID,
		p.InstrumentistID,
		p.ProcedureDate,
		p.StartTime,
		p.EndTime,
		p.DurationMinutes,
		p.PatientName,
		p.ProcedureType,
		p.IsVideosurgery,
		nullString(p.Doctor.UserID),
		nullString(p.Doctor.Name),
		nullString(p.Circulating.UserID),
		nullString(p.Circulating.Name),
		p.CalculatedAmount.StringFixed(2),
		p.PricingSnapshot,
		string(p.Status),
		nullString(p.PayoutBatchID),
		nullTime(p.PaidAt),
		nullString(p.VoidReason),
		nullTime(p.VoidedAt),
		p.CreatedBy,
		p.CreatedAt.UTC(),
		p.UpdatedAt.UTC(),
	)
	return err
}

// Update rewrites editable fields of a pending procedure.
func (r *Repository) Update(ctx context.Context, p *procedure.Procedure) error {
	if r == nil || r.db == nil {
		return errors.New("procedure repo: nil db")
	}
	if p == nil {
		return procedure.ErrNilProcedure
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE procedures SET
	procedure_date = $2,
	start_time = $3,
	end_time = $4,
	duration_minutes = $5,
	patient_name = $6,
	procedure_type = $7,
	is_videosurgery = $8,
	doctor_id = $9,
	doctor_name = $10,
	circulating_id = $11,
	circulating_name = $12,
	calculated_amount = $13,
	pricing_snapshot = $14,
	updated_at = $15
WHERE id = $1 AND status = 'pending'`,
		p.ID,
		p.ProcedureDate,
		p.StartTime,
		p.EndTime,
		p.DurationMinutes,
		p.PatientName,
		p.ProcedureType,
		p.IsVideosurgery,
		nullString(p.Doctor.UserID),
		nullString(p.Doctor.Name),
		nullString(p.Circulating.UserID),
		nullString(p.Circulating.Name),
		p.CalculatedAmount.StringFixed(2),
		p.PricingSnapshot,
		p.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	return r.requirePending(ctx, res, p.ID)
}

// Void stores the void state of a procedure that is still pending.
func (r *Repository) Void(ctx context.Context, p *procedure.Procedure) error {
	if r == nil || r.db == nil {
		return errors.New("procedure repo: nil db")
	}
	if p == nil {
		return procedure.ErrNilProcedure
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE procedures SET status = 'void', void_reason = $2, voided_at = $3, updated_at = $3
WHERE id = $1 AND status = 'pending'`,
		p.ID, p.VoidReason, p.VoidedAt.UTC(),
	)
	if err != nil {
		return err
	}
	return r.requirePending(ctx, res, p.ID)
}

// Get loads a procedure; nil when not found.
func (r *Repository) Get(ctx context.Context, id string) (*procedure.Procedure, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("procedure repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+procedureColumns+` FROM procedures WHERE id = $1`, id)
	p, err := ScanProcedure(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// List returns procedures matching filter ordered by date and start time.
func (r *Repository) List(ctx context.Context, filter procedure.Filter) ([]procedure.Procedure, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("procedure repo: nil db")
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
		add("instrumentist_id = $%d", filter.InstrumentistID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.PayoutBatchID != "" {
		add("payout_batch_id = $%d", filter.PayoutBatchID)
	}
	if !filter.From.IsZero() {
		add("procedure_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("procedure_date <= $%d", filter.To)
	}
	query := `SELECT ` + procedureColumns + ` FROM procedures`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY procedure_date, start_time, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []procedure.Procedure
	for rows.Next() {
		p, err := ScanProcedure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *Repository) requirePending(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM procedures WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return procedure.ErrProcedureNotFound
	}
	return procedure.ErrInvalidTransition
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Columns lists the procedure columns in ScanProcedure order.
func Columns() string {
	return procedureColumns
}

// ScanProcedure reads one row selected with Columns.
func ScanProcedure(row Scanner) (*procedure.Procedure, error) {
	var (
		p                                      procedure.Procedure
		status                                 string
		doctorID, doctorName, circID, circName sql.NullString
		batchID, voidReason                    sql.NullString
		paidAt, voidedAt                       sql.NullTime
	)
	err := row.Scan(
		&p.ID,
		&p.InstrumentistID,
		&p.ProcedureDate,
		&p.StartTime,
		&p.EndTime,
		&p.DurationMinutes,
		&p.PatientName,
		&p.ProcedureType,
		&p.IsVideosurgery,
		&doctorID,
		&doctorName,
		&circID,
		&circName,
		&p.CalculatedAmount,
		&p.PricingSnapshot,
		&status,
		&batchID,
		&paidAt,
		&voidReason,
		&voidedAt,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = procedure.Status(status)
	p.ProcedureDate = p.ProcedureDate.UTC()
	p.Doctor = procedure.Participant{UserID: doctorID.String, Name: doctorName.String}
	p.Circulating = procedure.Participant{UserID: circID.String, Name: circName.String}
	p.PayoutBatchID = batchID.String
	p.VoidReason = voidReason.String
	if paidAt.Valid {
		p.PaidAt = paidAt.Time.UTC()
	}
	if voidedAt.Valid {
		p.VoidedAt = voidedAt.Time.UTC()
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
