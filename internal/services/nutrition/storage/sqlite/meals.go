package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
)

const mealColumns = `id, user_id, meal_date, eaten_at, meal_type, calories, protein, fat, carbs,
    description, photo_file_id, audio_file_id, ai_analysis, created_at`

// CreateMeal inserts one logged meal.
func (s *Store) CreateMeal(ctx context.Context, meal storage.MealRecord) (storage.MealRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.MealRecord{}, err
	}
	normalized, err := s.normalizeMealRecord(meal)
	if err != nil {
		return storage.MealRecord{}, err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO meals (
    user_id, meal_date, eaten_at, meal_type, calories, protein, fat, carbs,
    description, photo_file_id, audio_file_id, ai_analysis, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		normalized.UserID,
		normalized.MealDate,
		toMillis(normalized.EatenAt),
		string(normalized.MealType),
		normalized.Calories,
		normalized.Protein,
		normalized.Fat,
		normalized.Carbs,
		normalized.Description,
		normalized.PhotoFileID,
		normalized.AudioFileID,
		normalized.AnalysisJSON,
		toMillis(normalized.CreatedAt),
	)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return storage.MealRecord{}, storage.ErrNotFound
		}
		return storage.MealRecord{}, fmt.Errorf("create meal: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storage.MealRecord{}, fmt.Errorf("create meal id: %w", err)
	}
	normalized.ID = id
	return normalized, nil
}

// ListMealsForDay lists one user's meals for a YYYY-MM-DD date, oldest first.
func (s *Store) ListMealsForDay(ctx context.Context, userID int64, date string) ([]storage.MealRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	date = strings.TrimSpace(date)
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, fmt.Errorf("meal date %q: %w", date, err)
	}
	return s.queryMeals(ctx, `
SELECT `+mealColumns+`
FROM meals
WHERE user_id = ? AND meal_date = ?
ORDER BY eaten_at, id
`, userID, date)
}

// ListRecentMeals lists up to limit meals newest-first.
func (s *Store) ListRecentMeals(ctx context.Context, userID int64, limit int) ([]storage.MealRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	return s.queryMeals(ctx, `
SELECT `+mealColumns+`
FROM meals
WHERE user_id = ?
ORDER BY eaten_at DESC, id DESC
LIMIT ?
`, userID, limit)
}

// CountMealsSince counts meals eaten at or after since.
func (s *Store) CountMealsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(1) FROM meals WHERE user_id = ? AND eaten_at >= ?
`, userID, toMillis(since)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count meals: %w", err)
	}
	return count, nil
}

func (s *Store) queryMeals(ctx context.Context, query string, args ...any) ([]storage.MealRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list meals: %w", err)
	}
	defer rows.Close()

	var out []storage.MealRecord
	for rows.Next() {
		record, err := scanMeal(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan meal: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meals: %w", err)
	}
	return out, nil
}

func (s *Store) normalizeMealRecord(meal storage.MealRecord) (storage.MealRecord, error) {
	if meal.UserID <= 0 {
		return storage.MealRecord{}, fmt.Errorf("user id is required")
	}
	if meal.EatenAt.IsZero() {
		meal.EatenAt = s.clock()
	}
	meal.EatenAt = meal.EatenAt.UTC()
	meal.MealDate = strings.TrimSpace(meal.MealDate)
	if meal.MealDate == "" {
		meal.MealDate = meal.EatenAt.Format(time.DateOnly)
	}
	if _, err := time.Parse(time.DateOnly, meal.MealDate); err != nil {
		return storage.MealRecord{}, fmt.Errorf("meal date %q: %w", meal.MealDate, err)
	}
	if meal.MealType == "" {
		meal.MealType = domain.MealSnack
	}
	if meal.Calories < 0 || meal.Protein < 0 || meal.Fat < 0 || meal.Carbs < 0 {
		return storage.MealRecord{}, fmt.Errorf("meal nutrition cannot be negative")
	}
	meal.Description = strings.TrimSpace(meal.Description)
	if meal.CreatedAt.IsZero() {
		meal.CreatedAt = s.clock()
	}
	meal.CreatedAt = meal.CreatedAt.UTC()
	return meal, nil
}

func scanMeal(scan scanner) (storage.MealRecord, error) {
	var (
		record    storage.MealRecord
		eatenAt   int64
		mealType  string
		createdAt int64
	)
	if err := scan(
		&record.ID,
		&record.UserID,
		&record.MealDate,
		&eatenAt,
		&mealType,
		&record.Calories,
		&record.Protein,
		&record.Fat,
		&record.Carbs,
		&record.Description,
		&record.PhotoFileID,
		&record.AudioFileID,
		&record.AnalysisJSON,
		&createdAt,
	); err != nil {
		return storage.MealRecord{}, err
	}
	record.EatenAt = fromMillis(eatenAt)
	record.MealType = domain.MealType(mealType)
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}
