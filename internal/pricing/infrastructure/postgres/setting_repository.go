package postgres

import (
	"context"
	"database/sql"
	"errors"

	pricing "qxlog/internal/pricing/domain"
)

// singletonID is the only row id pricing_settings accepts.
const singletonID = 1

// SettingRepository persists the pricing setting row.
type SettingRepository struct {
	db *sql.DB
}

// NewSettingRepository constructs a repository.
func NewSettingRepository(db *sql.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get loads the active setting; soft-deleted rows are ignored.
func (r *SettingRepository) Get(ctx context.Context) (*pricing.Setting, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("pricing setting repo: nil db")
	}
	var setting pricing.Setting
	var updatedBy sql.NullString
	err := r.db.QueryRowContext(ctx, `
SELECT default_rate, video_rate, night_rate, long_case_rate,
	long_case_threshold_minutes, night_start, night_end, updated_by, updated_at
FROM pricing_settings
WHERE id = $1 AND deleted_at IS NULL`, singletonID).Scan(
		&setting.DefaultRate,
		&setting.VideoRate,
		&setting.NightRate,
		&setting.LongCaseRate,
		&setting.LongCaseThresholdMinutes,
		&setting.NightStart,
		&setting.NightEnd,
		&updatedBy,
		&setting.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if updatedBy.Valid {
		setting.UpdatedBy = updatedBy.String
	}
	setting.UpdatedAt = setting.UpdatedAt.UTC()
	return &setting, nil
}

// Save upserts the setting row and clears any soft delete.
func (r *SettingRepository) Save(ctx context.Context, setting pricing.Setting) error {
	if r == nil || r.db == nil {
		return errors.New("pricing setting repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO pricing_settings (
	id, default_rate, video_rate, night_rate, long_case_rate,
	long_case_threshold_minutes, night_start, night_end, updated_by, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id)
DO UPDATE SET
	default_rate = EXCLUDED.default_rate,
	video_rate = EXCLUDED.video_rate,
	night_rate = EXCLUDED.night_rate,
	long_case_rate = EXCLUDED.long_case_rate,
	long_case_threshold_minutes = EXCLUDED.long_case_threshold_minutes,
	night_start = EXCLUDED.night_start,
	night_end = EXCLUDED.night_end,
	updated_by = EXCLUDED.updated_by,
	updated_at = EXCLUDED.updated_at,
	deleted_at = NULL`,
		singletonID,
		setting.DefaultRate,
		setting.VideoRate,
		setting.NightRate,
		setting.LongCaseRate,
		setting.LongCaseThresholdMinutes,
		setting.NightStart,
		setting.NightEnd,
		setting.UpdatedBy,
		setting.UpdatedAt.UTC(),
	)
	return err
}
