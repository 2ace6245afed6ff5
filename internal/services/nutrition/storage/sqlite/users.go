package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
)

const userColumns = `id, telegram_id, username, first_name, last_name,
    age, gender, height, weight, activity_level, target_weight,
    target_calories, target_protein, target_fat, target_carbs,
    motivation_level, main_goal, diet_method, favorite_foods, disliked_foods,
    motivation_type, setback_patterns, workout_frequency, training_method,
    timezone, language, notifications_enabled,
    state, pending_food_description, food_details_expires_at,
    pending_analysis, pending_confirmation, pending_confirmation_message_id,
    created_at, updated_at`

// GetUser loads one user by internal id.
func (s *Store) GetUser(ctx context.Context, id int64) (storage.UserRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.UserRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return getUser(row)
}

// GetUserByTelegramID loads one user by Telegram account id.
func (s *Store) GetUserByTelegramID(ctx context.Context, telegramID int64) (storage.UserRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.UserRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID)
	return getUser(row)
}

func getUser(row *sql.Row) (storage.UserRecord, error) {
	record, err := scanUser(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.UserRecord{}, storage.ErrNotFound
		}
		return storage.UserRecord{}, fmt.Errorf("get user: %w", err)
	}
	return record, nil
}

// CreateUser inserts a new user and returns it with id and timestamps set.
func (s *Store) CreateUser(ctx context.Context, user storage.UserRecord) (storage.UserRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.UserRecord{}, err
	}
	if user.TelegramID == 0 {
		return storage.UserRecord{}, fmt.Errorf("telegram id is required")
	}
	now := s.clock()
	user.CreatedAt = now
	user.UpdatedAt = now
	user = normalizeUserRecord(user)

	args, err := userArgs(user)
	if err != nil {
		return storage.UserRecord{}, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (
    telegram_id, username, first_name, last_name,
    age, gender, height, weight, activity_level, target_weight,
    target_calories, target_protein, target_fat, target_carbs,
    motivation_level, main_goal, diet_method, favorite_foods, disliked_foods,
    motivation_type, setback_patterns, workout_frequency, training_method,
    timezone, language, notifications_enabled,
    state, pending_food_description, food_details_expires_at,
    pending_analysis, pending_confirmation, pending_confirmation_message_id,
    updated_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, append(args, toMillis(user.CreatedAt))...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.UserRecord{}, storage.ErrConflict
		}
		return storage.UserRecord{}, fmt.Errorf("create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storage.UserRecord{}, fmt.Errorf("create user id: %w", err)
	}
	user.ID = id
	return user, nil
}

// PutUser updates every mutable column of an existing user.
func (s *Store) PutUser(ctx context.Context, user storage.UserRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if user.ID <= 0 {
		return fmt.Errorf("user id is required")
	}
	user.UpdatedAt = s.clock()
	user = normalizeUserRecord(user)

	args, err := userArgs(user)
	if err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE users SET
    telegram_id = ?, username = ?, first_name = ?, last_name = ?,
    age = ?, gender = ?, height = ?, weight = ?, activity_level = ?, target_weight = ?,
    target_calories = ?, target_protein = ?, target_fat = ?, target_carbs = ?,
    motivation_level = ?, main_goal = ?, diet_method = ?, favorite_foods = ?, disliked_foods = ?,
    motivation_type = ?, setback_patterns = ?, workout_frequency = ?, training_method = ?,
    timezone = ?, language = ?, notifications_enabled = ?,
    state = ?, pending_food_description = ?, food_details_expires_at = ?,
    pending_analysis = ?, pending_confirmation = ?, pending_confirmation_message_id = ?,
    updated_at = ?
WHERE id = ?
`, append(args, user.ID)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("put user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("put user rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListNotifiableUsers lists onboarded users with notifications enabled.
func (s *Store) ListNotifiableUsers(ctx context.Context) ([]storage.UserRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE notifications_enabled = 1 AND target_calories > 0
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("list notifiable users: %w", err)
	}
	defer rows.Close()

	var out []storage.UserRecord
	for rows.Next() {
		record, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan notifiable user: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifiable users: %w", err)
	}
	return out, nil
}

func normalizeUserRecord(user storage.UserRecord) storage.UserRecord {
	user.Username = strings.TrimSpace(user.Username)
	user.FirstName = strings.TrimSpace(user.FirstName)
	user.LastName = strings.TrimSpace(user.LastName)
	user.Timezone = strings.TrimSpace(user.Timezone)
	if user.Timezone == "" {
		user.Timezone = "Europe/Moscow"
	}
	user.Language = strings.TrimSpace(user.Language)
	if user.Language == "" {
		user.Language = "ru"
	}
	return user
}

// userArgs returns column values in the shared insert/update order, ending
// with updated_at.
func userArgs(user storage.UserRecord) ([]any, error) {
	favorites, err := marshalJSON(nonNilStrings(user.FavoriteFoods))
	if err != nil {
		return nil, fmt.Errorf("encode favorite foods: %w", err)
	}
	disliked, err := marshalJSON(nonNilStrings(user.DislikedFoods))
	if err != nil {
		return nil, fmt.Errorf("encode disliked foods: %w", err)
	}
	pendingAnalysis, err := marshalOptional(user.PendingAnalysis)
	if err != nil {
		return nil, fmt.Errorf("encode pending analysis: %w", err)
	}
	pendingConfirmation, err := marshalOptional(user.PendingConfirmation)
	if err != nil {
		return nil, fmt.Errorf("encode pending confirmation: %w", err)
	}
	var expiresAt sql.NullInt64
	if user.FoodDetailsExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: toMillis(*user.FoodDetailsExpiresAt), Valid: true}
	}

	return []any{
		user.TelegramID, user.Username, user.FirstName, user.LastName,
		user.Age, string(user.Gender), user.HeightCM, user.WeightKG, string(user.Activity), user.TargetWeightKG,
		user.Targets.Calories, user.Targets.Protein, user.Targets.Fat, user.Targets.Carbs,
		string(user.MotivationLevel), string(user.Goal), user.DietMethod, favorites, disliked,
		string(user.MotivationType), user.SetbackPatterns, user.WorkoutFrequency, user.TrainingMethod,
		user.Timezone, user.Language, boolToInt(user.NotificationsEnabled),
		string(user.State), user.PendingFoodDescription, expiresAt,
		pendingAnalysis, pendingConfirmation, user.PendingConfirmationMessageID,
		toMillis(user.UpdatedAt),
	}, nil
}

func scanUser(scan scanner) (storage.UserRecord, error) {
	var (
		record              storage.UserRecord
		gender              string
		activity            string
		motivationLevel     string
		goal                string
		favorites           string
		disliked            string
		motivationType      string
		notifications       int
		state               string
		expiresAt           sql.NullInt64
		pendingAnalysis     string
		pendingConfirmation string
		createdAt           int64
		updatedAt           int64
	)
	if err := scan(
		&record.ID, &record.TelegramID, &record.Username, &record.FirstName, &record.LastName,
		&record.Age, &gender, &record.HeightCM, &record.WeightKG, &activity, &record.TargetWeightKG,
		&record.Targets.Calories, &record.Targets.Protein, &record.Targets.Fat, &record.Targets.Carbs,
		&motivationLevel, &goal, &record.DietMethod, &favorites, &disliked,
		&motivationType, &record.SetbackPatterns, &record.WorkoutFrequency, &record.TrainingMethod,
		&record.Timezone, &record.Language, &notifications,
		&state, &record.PendingFoodDescription, &expiresAt,
		&pendingAnalysis, &pendingConfirmation, &record.PendingConfirmationMessageID,
		&createdAt, &updatedAt,
	); err != nil {
		return storage.UserRecord{}, err
	}

	var err error
	if record.FavoriteFoods, err = unmarshalStrings(favorites); err != nil {
		return storage.UserRecord{}, fmt.Errorf("decode favorite foods: %w", err)
	}
	if record.DislikedFoods, err = unmarshalStrings(disliked); err != nil {
		return storage.UserRecord{}, fmt.Errorf("decode disliked foods: %w", err)
	}
	if record.PendingAnalysis, err = unmarshalOptional[storage.PendingAnalysis](pendingAnalysis); err != nil {
		return storage.UserRecord{}, fmt.Errorf("decode pending analysis: %w", err)
	}
	if record.PendingConfirmation, err = unmarshalOptional[storage.PendingConfirmation](pendingConfirmation); err != nil {
		return storage.UserRecord{}, fmt.Errorf("decode pending confirmation: %w", err)
	}
	if expiresAt.Valid {
		value := fromMillis(expiresAt.Int64)
		record.FoodDetailsExpiresAt = &value
	}
	record.Gender = domain.Gender(gender)
	record.Activity = domain.ActivityLevel(activity)
	record.MotivationLevel = domain.MotivationLevel(motivationLevel)
	record.Goal = domain.Goal(goal)
	record.MotivationType = domain.MotivationType(motivationType)
	record.NotificationsEnabled = notifications == 1
	record.State = domain.State(state)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
