package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
)

const defaultSearchLimit = 5

// SearchFoods finds foods whose names contain every word of term. Only foods
// with a positive energy value are returned; nutrition is per 100 g.
func (s *Store) SearchFoods(ctx context.Context, term string, limit int) ([]storage.FoodMatch, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	phrase := strings.ToLower(strings.TrimSpace(term))
	if phrase == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var (
		clauses []string
		args    []any
	)
	for _, word := range strings.Fields(phrase) {
		if utf8.RuneCountInString(word) <= 1 {
			continue
		}
		clauses = append(clauses, `f.description_lower LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(word)+"%")
	}
	where := `f.description LIKE ? ESCAPE '\'`
	if len(clauses) > 0 {
		where = "(" + strings.Join(clauses, " AND ") + ") OR " + where
	}
	args = append(args, "%"+escapeLike(phrase)+"%", limit)

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT f.id, f.fdc_id, f.data_type, f.description, f.description_en, f.description_ru,
    f.description_lower, f.food_category_id, f.published_at,
    COALESCE(MAX(CASE WHEN n.nutrient_number = 208 THEN fn.amount END),
             MAX(CASE WHEN n.nutrient_number = 957 THEN fn.amount END), 0) AS calories,
    COALESCE(MAX(CASE WHEN n.nutrient_number = 203 THEN fn.amount END), 0) AS protein,
    COALESCE(MAX(CASE WHEN n.nutrient_number = 204 THEN fn.amount END), 0) AS fat,
    COALESCE(MAX(CASE WHEN n.nutrient_number = 205 THEN fn.amount END), 0) AS carbs
FROM food_data f
JOIN food_nutrients fn ON fn.food_data_id = f.id
JOIN nutrients n ON n.id = fn.nutrient_id
WHERE `+where+`
GROUP BY f.id
HAVING calories > 0
ORDER BY f.description, f.id
LIMIT ?
`, args...)
	if err != nil {
		return nil, fmt.Errorf("search foods: %w", err)
	}
	defer rows.Close()

	var out []storage.FoodMatch
	for rows.Next() {
		var (
			match       storage.FoodMatch
			publishedAt int64
		)
		if err := rows.Scan(
			&match.Food.ID,
			&match.Food.FDCID,
			&match.Food.DataType,
			&match.Food.Description,
			&match.Food.DescriptionEN,
			&match.Food.DescriptionRU,
			&match.Food.DescriptionLower,
			&match.Food.FoodCategoryID,
			&publishedAt,
			&match.Per100g.Calories,
			&match.Per100g.Protein,
			&match.Per100g.Fat,
			&match.Per100g.Carbs,
		); err != nil {
			return nil, fmt.Errorf("scan food match: %w", err)
		}
		if publishedAt > 0 {
			match.Food.PublishedAt = fromMillis(publishedAt)
		}
		match.Per100g.Description = match.DisplayName() + " 100г"
		out = append(out, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate food matches: %w", err)
	}
	return out, nil
}

// SaveAnalyzedFood stores a per-100 g analysis as a searchable food under a
// synthetic negative FDC id. A food with the same name yields ErrConflict.
func (s *Store) SaveAnalyzedFood(ctx context.Context, dataType string, analysis domain.Analysis) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	name := domain.CleanFoodName(analysis.Description)
	if name == "" {
		return 0, fmt.Errorf("food description is required")
	}
	lower := strings.ToLower(name)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin analyzed food write: %w", err)
	}
	rollbackWith := func(cause error) (int64, error) {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return 0, fmt.Errorf("%w: rollback analyzed food write: %v", cause, rollbackErr)
		}
		return 0, cause
	}

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM food_data WHERE description_lower = ? LIMIT 1`, lower).Scan(&exists)
	switch {
	case err == nil:
		return rollbackWith(storage.ErrConflict)
	case !errors.Is(err, sql.ErrNoRows):
		return rollbackWith(fmt.Errorf("check analyzed food: %w", err))
	}

	var minFDCID int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MIN(fdc_id), 0) FROM food_data`).Scan(&minFDCID); err != nil {
		return rollbackWith(fmt.Errorf("next synthetic fdc id: %w", err))
	}
	food := storage.FoodRecord{
		FDCID:            min(minFDCID, 0) - 1,
		DataType:         dataType,
		Description:      name,
		DescriptionLower: lower,
	}
	if hasCyrillic(name) {
		food.DescriptionRU = name
	} else {
		food.DescriptionEN = name
	}
	foodID, err := putFoodRow(ctx, tx, food)
	if err != nil {
		return rollbackWith(err)
	}

	sanitized := analysis.Sanitized()
	for number, amount := range map[int]float64{
		storage.NutrientEnergy:  sanitized.Calories,
		storage.NutrientProtein: sanitized.Protein,
		storage.NutrientFat:     sanitized.Fat,
		storage.NutrientCarbs:   sanitized.Carbs,
	} {
		var nutrientID int64
		if err := tx.QueryRowContext(ctx, `
SELECT id FROM nutrients WHERE nutrient_number = ? ORDER BY id LIMIT 1
`, number).Scan(&nutrientID); err != nil {
			return rollbackWith(fmt.Errorf("lookup nutrient %d: %w", number, err))
		}
		units := "G"
		if number == storage.NutrientEnergy {
			units = "KCAL"
		}
		if err := putFoodNutrientExec(ctx, tx, storage.FoodNutrientRecord{
			FoodDataID: foodID,
			NutrientID: nutrientID,
			Amount:     amount,
			Units:      units,
		}); err != nil {
			return rollbackWith(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit analyzed food write: %w", err)
	}
	return foodID, nil
}

// UpsertNutrient inserts or updates a nutrient by its FDC nutrient id.
func (s *Store) UpsertNutrient(ctx context.Context, nutrient storage.NutrientRecord) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if nutrient.FDCNutrientID == 0 {
		return 0, fmt.Errorf("fdc nutrient id is required")
	}
	name := strings.TrimSpace(nutrient.Name)
	if name == "" {
		return 0, fmt.Errorf("nutrient name is required")
	}
	var id int64
	err := s.sqlDB.QueryRowContext(ctx, `
INSERT INTO nutrients (fdc_nutrient_id, name, unit_name, nutrient_number, rank)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(fdc_nutrient_id) DO UPDATE SET
    name = excluded.name,
    unit_name = excluded.unit_name,
    nutrient_number = excluded.nutrient_number,
    rank = excluded.rank
RETURNING id
`, nutrient.FDCNutrientID, name, strings.ToUpper(strings.TrimSpace(nutrient.UnitName)), nutrient.NutrientNumber, nutrient.Rank).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert nutrient: %w", err)
	}
	return id, nil
}

// PutFood inserts or updates a food by its FDC id.
func (s *Store) PutFood(ctx context.Context, food storage.FoodRecord) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	return putFoodRow(ctx, s.sqlDB, food)
}

// PutFoodNutrient inserts or updates one nutrient amount for a food.
func (s *Store) PutFoodNutrient(ctx context.Context, record storage.FoodNutrientRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return putFoodNutrientExec(ctx, s.sqlDB, record)
}

type sqlQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func putFoodRow(ctx context.Context, queryer sqlQueryer, food storage.FoodRecord) (int64, error) {
	food, err := normalizeFoodRecord(food)
	if err != nil {
		return 0, err
	}
	var publishedAt int64
	if !food.PublishedAt.IsZero() {
		publishedAt = toMillis(food.PublishedAt)
	}
	var id int64
	err = queryer.QueryRowContext(ctx, `
INSERT INTO food_data (
    fdc_id, data_type, description, description_en, description_ru,
    description_lower, food_category_id, published_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(fdc_id) DO UPDATE SET
    data_type = excluded.data_type,
    description = excluded.description,
    description_en = excluded.description_en,
    description_ru = excluded.description_ru,
    description_lower = excluded.description_lower,
    food_category_id = excluded.food_category_id,
    published_at = excluded.published_at
RETURNING id
`,
		food.FDCID,
		food.DataType,
		food.Description,
		food.DescriptionEN,
		food.DescriptionRU,
		food.DescriptionLower,
		food.FoodCategoryID,
		publishedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("put food: %w", err)
	}
	return id, nil
}

func putFoodNutrientExec(ctx context.Context, execer sqlExecer, record storage.FoodNutrientRecord) error {
	if record.FoodDataID <= 0 || record.NutrientID <= 0 {
		return fmt.Errorf("food and nutrient ids are required")
	}
	units := strings.ToUpper(strings.TrimSpace(record.Units))
	if units == "" {
		units = "G"
	}
	var minAmount, maxAmount sql.NullFloat64
	if record.Min != nil {
		minAmount = sql.NullFloat64{Float64: *record.Min, Valid: true}
	}
	if record.Max != nil {
		maxAmount = sql.NullFloat64{Float64: *record.Max, Valid: true}
	}
	_, err := execer.ExecContext(ctx, `
INSERT INTO food_nutrients (food_data_id, nutrient_id, amount, derivation_id, min_amount, max_amount, units)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(food_data_id, nutrient_id) DO UPDATE SET
    amount = excluded.amount,
    derivation_id = excluded.derivation_id,
    min_amount = excluded.min_amount,
    max_amount = excluded.max_amount,
    units = excluded.units
`, record.FoodDataID, record.NutrientID, record.Amount, record.DerivationID, minAmount, maxAmount, units)
	if err != nil {
		if isForeignKeyConstraintError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("put food nutrient: %w", err)
	}
	return nil
}

// normalizeFoodRecord fills description_lower with every known name so one
// LIKE column covers both languages. SQLite lower() only folds ASCII.
func normalizeFoodRecord(food storage.FoodRecord) (storage.FoodRecord, error) {
	food.Description = strings.TrimSpace(food.Description)
	food.DescriptionEN = strings.TrimSpace(food.DescriptionEN)
	food.DescriptionRU = strings.TrimSpace(food.DescriptionRU)
	if food.Description == "" {
		food.Description = food.DescriptionRU
	}
	if food.Description == "" {
		food.Description = food.DescriptionEN
	}
	if food.Description == "" {
		return storage.FoodRecord{}, fmt.Errorf("food description is required")
	}
	if food.FDCID == 0 {
		return storage.FoodRecord{}, fmt.Errorf("fdc id is required")
	}
	if strings.TrimSpace(food.DataType) == "" {
		return storage.FoodRecord{}, fmt.Errorf("food data type is required")
	}
	if strings.TrimSpace(food.DescriptionLower) == "" {
		names := make([]string, 0, 3)
		seen := map[string]bool{}
		for _, name := range []string{food.Description, food.DescriptionEN, food.DescriptionRU} {
			lower := strings.ToLower(name)
			if lower == "" || seen[lower] {
				continue
			}
			seen[lower] = true
			names = append(names, lower)
		}
		food.DescriptionLower = strings.Join(names, " | ")
	}
	return food, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func hasCyrillic(value string) bool {
	for _, r := range value {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}
