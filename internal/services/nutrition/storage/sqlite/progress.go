package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
)

// PutProgress upserts one user's progress row for a date.
func (s *Store) PutProgress(ctx context.Context, progress storage.ProgressRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if progress.UserID <= 0 {
		return fmt.Errorf("user id is required")
	}
	progress.Date = strings.TrimSpace(progress.Date)
	if _, err := time.Parse(time.DateOnly, progress.Date); err != nil {
		return fmt.Errorf("progress date %q: %w", progress.Date, err)
	}
	progress.UpdatedAt = s.clock()

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO progress (
    user_id, progress_date, weight, body_fat, muscle_mass, chest, waist, hips,
    total_calories, total_protein, total_fat, total_carbs, meals_count,
    workouts_count, notes, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, progress_date) DO UPDATE SET
    weight = excluded.weight,
    body_fat = excluded.body_fat,
    muscle_mass = excluded.muscle_mass,
    chest = excluded.chest,
    waist = excluded.waist,
    hips = excluded.hips,
    total_calories = excluded.total_calories,
    total_protein = excluded.total_protein,
    total_fat = excluded.total_fat,
    total_carbs = excluded.total_carbs,
    meals_count = excluded.meals_count,
    workouts_count = excluded.workouts_count,
    notes = excluded.notes,
    updated_at = excluded.updated_at
`,
		progress.UserID,
		progress.Date,
		progress.WeightKG,
		progress.BodyFatPct,
		progress.MuscleMassKG,
		progress.ChestCM,
		progress.WaistCM,
		progress.HipsCM,
		progress.Totals.Calories,
		progress.Totals.Protein,
		progress.Totals.Fat,
		progress.Totals.Carbs,
		progress.Totals.Meals,
		progress.WorkoutsCount,
		strings.TrimSpace(progress.Notes),
		toMillis(progress.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("put progress: %w", err)
	}
	return nil
}

// GetProgress loads one user's progress row for a date.
func (s *Store) GetProgress(ctx context.Context, userID int64, date string) (storage.ProgressRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ProgressRecord{}, err
	}
	var (
		record    storage.ProgressRecord
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, progress_date, weight, body_fat, muscle_mass, chest, waist, hips,
    total_calories, total_protein, total_fat, total_carbs, meals_count,
    workouts_count, notes, updated_at
FROM progress
WHERE user_id = ? AND progress_date = ?
`, userID, strings.TrimSpace(date)).Scan(
		&record.UserID,
		&record.Date,
		&record.WeightKG,
		&record.BodyFatPct,
		&record.MuscleMassKG,
		&record.ChestCM,
		&record.WaistCM,
		&record.HipsCM,
		&record.Totals.Calories,
		&record.Totals.Protein,
		&record.Totals.Fat,
		&record.Totals.Carbs,
		&record.Totals.Meals,
		&record.WorkoutsCount,
		&record.Notes,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProgressRecord{}, storage.ErrNotFound
		}
		return storage.ProgressRecord{}, fmt.Errorf("get progress: %w", err)
	}
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
