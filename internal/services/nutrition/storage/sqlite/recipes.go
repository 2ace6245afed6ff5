package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
)

const recipeColumns = `r.id, r.title, r.description, r.ingredients, r.instructions, r.nutrition,
    r.difficulty, r.cooking_time, r.servings, r.tags, r.user_id, r.is_popular,
    r.created_at, r.updated_at`

// CreateRecipe inserts one recipe.
func (s *Store) CreateRecipe(ctx context.Context, recipe storage.RecipeRecord) (storage.RecipeRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.RecipeRecord{}, err
	}
	recipe.Title = strings.TrimSpace(recipe.Title)
	if recipe.Title == "" {
		return storage.RecipeRecord{}, fmt.Errorf("recipe title is required")
	}
	switch recipe.Difficulty {
	case storage.DifficultyEasy, storage.DifficultyMedium, storage.DifficultyHard:
	case "":
		recipe.Difficulty = storage.DifficultyEasy
	default:
		return storage.RecipeRecord{}, fmt.Errorf("recipe difficulty %q is invalid", recipe.Difficulty)
	}
	if recipe.Servings <= 0 {
		recipe.Servings = 1
	}
	now := s.clock()
	recipe.CreatedAt = now
	recipe.UpdatedAt = now

	ingredients, err := marshalJSON(recipe.Ingredients)
	if err != nil {
		return storage.RecipeRecord{}, fmt.Errorf("encode ingredients: %w", err)
	}
	nutrition, err := marshalJSON(recipe.Nutrition)
	if err != nil {
		return storage.RecipeRecord{}, fmt.Errorf("encode nutrition: %w", err)
	}
	tags, err := marshalJSON(nonNilStrings(recipe.Tags))
	if err != nil {
		return storage.RecipeRecord{}, fmt.Errorf("encode tags: %w", err)
	}
	var userID sql.NullInt64
	if recipe.UserID > 0 {
		userID = sql.NullInt64{Int64: recipe.UserID, Valid: true}
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO recipes (
    title, description, ingredients, instructions, nutrition, difficulty,
    cooking_time, servings, tags, user_id, is_popular, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		recipe.Title,
		strings.TrimSpace(recipe.Description),
		ingredients,
		strings.TrimSpace(recipe.Instructions),
		nutrition,
		recipe.Difficulty,
		recipe.CookingTimeMin,
		recipe.Servings,
		tags,
		userID,
		boolToInt(recipe.IsPopular),
		toMillis(recipe.CreatedAt),
		toMillis(recipe.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return storage.RecipeRecord{}, storage.ErrNotFound
		}
		return storage.RecipeRecord{}, fmt.Errorf("create recipe: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storage.RecipeRecord{}, fmt.Errorf("create recipe id: %w", err)
	}
	recipe.ID = id
	return recipe, nil
}

// GetRecipe loads one recipe by id.
func (s *Store) GetRecipe(ctx context.Context, id int64) (storage.RecipeRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.RecipeRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+recipeColumns+` FROM recipes r WHERE r.id = ?`, id)
	record, err := scanRecipe(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.RecipeRecord{}, storage.ErrNotFound
		}
		return storage.RecipeRecord{}, fmt.Errorf("get recipe: %w", err)
	}
	return record, nil
}

// ListPopularRecipes lists catalog recipes marked popular, newest first.
func (s *Store) ListPopularRecipes(ctx context.Context, limit int) ([]storage.RecipeRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	return s.queryRecipes(ctx, `
SELECT `+recipeColumns+`
FROM recipes r
WHERE r.is_popular = 1
ORDER BY r.created_at DESC, r.id DESC
LIMIT ?
`, limit)
}

// ListFavoriteRecipes lists one user's favorite recipes, most recently
// favorited first.
func (s *Store) ListFavoriteRecipes(ctx context.Context, userID int64) ([]storage.RecipeRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return s.queryRecipes(ctx, `
SELECT `+recipeColumns+`
FROM recipes r
JOIN user_recipes ur ON ur.recipe_id = r.id
WHERE ur.user_id = ? AND ur.is_favorite = 1
ORDER BY ur.updated_at DESC, r.id DESC
`, userID)
}

// SetFavorite marks or unmarks a recipe as a user's favorite.
func (s *Store) SetFavorite(ctx context.Context, userID int64, recipeID int64, favorite bool) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO user_recipes (user_id, recipe_id, is_favorite, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(user_id, recipe_id) DO UPDATE SET
    is_favorite = excluded.is_favorite,
    updated_at = excluded.updated_at
`, userID, recipeID, boolToInt(favorite), toMillis(s.clock()))
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("set favorite: %w", err)
	}
	return nil
}

// IsFavorite reports whether a user favorited a recipe.
func (s *Store) IsFavorite(ctx context.Context, userID int64, recipeID int64) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	var favorite int
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT is_favorite FROM user_recipes WHERE user_id = ? AND recipe_id = ?
`, userID, recipeID).Scan(&favorite)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("get favorite: %w", err)
	}
	return favorite == 1, nil
}

func (s *Store) queryRecipes(ctx context.Context, query string, args ...any) ([]storage.RecipeRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	var out []storage.RecipeRecord
	for rows.Next() {
		record, err := scanRecipe(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipes: %w", err)
	}
	return out, nil
}

func scanRecipe(scan scanner) (storage.RecipeRecord, error) {
	var (
		record      storage.RecipeRecord
		ingredients string
		nutrition   string
		tags        string
		userID      sql.NullInt64
		popular     int
		createdAt   int64
		updatedAt   int64
	)
	if err := scan(
		&record.ID,
		&record.Title,
		&record.Description,
		&ingredients,
		&record.Instructions,
		&nutrition,
		&record.Difficulty,
		&record.CookingTimeMin,
		&record.Servings,
		&tags,
		&userID,
		&popular,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.RecipeRecord{}, err
	}
	if strings.TrimSpace(ingredients) != "" {
		if err := json.Unmarshal([]byte(ingredients), &record.Ingredients); err != nil {
			return storage.RecipeRecord{}, fmt.Errorf("decode ingredients: %w", err)
		}
	}
	if strings.TrimSpace(nutrition) != "" {
		if err := json.Unmarshal([]byte(nutrition), &record.Nutrition); err != nil {
			return storage.RecipeRecord{}, fmt.Errorf("decode nutrition: %w", err)
		}
	}
	var err error
	if record.Tags, err = unmarshalStrings(tags); err != nil {
		return storage.RecipeRecord{}, fmt.Errorf("decode tags: %w", err)
	}
	if userID.Valid {
		record.UserID = userID.Int64
	}
	record.IsPopular = popular == 1
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
