// Package foodimport loads reference foods into the bot database from a
// USDA FoodData Central CSV export and from a local CSV of Russian foods.
package foodimport

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage/sqlite"
)

// Config holds configuration for the food importer.
type Config struct {
	Dir      string
	LocalCSV string
	DBPath   string
	Limit    int
	DryRun   bool
}

// ParseConfig parses CLI flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{DBPath: filepath.Join("data", "eatbot.db")}

	fs.StringVar(&cfg.Dir, "dir", "", "FoodData Central CSV export directory (nutrient.csv, food.csv, food_nutrient.csv)")
	fs.StringVar(&cfg.LocalCSV, "local-csv", "", "local foods CSV with columns product,fat,protein,carbs,kcal")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "bot database path")
	fs.IntVar(&cfg.Limit, "limit", 0, "maximum foundation foods to import (0 imports all)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "parse files without writing to the database")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.Dir) == "" && strings.TrimSpace(cfg.LocalCSV) == "" {
		return Config{}, errors.New("dir or local-csv is required")
	}
	if cfg.Limit < 0 {
		return Config{}, errors.New("limit must not be negative")
	}
	return cfg, nil
}

// Store is the food table persistence the importer writes to.
type Store interface {
	UpsertNutrient(ctx context.Context, nutrient storage.NutrientRecord) (int64, error)
	PutFood(ctx context.Context, food storage.FoodRecord) (int64, error)
	PutFoodNutrient(ctx context.Context, record storage.FoodNutrientRecord) error
	SaveAnalyzedFood(ctx context.Context, dataType string, analysis domain.Analysis) (int64, error)
}

// Summary counts imported rows.
type Summary struct {
	Nutrients     int
	Foods         int
	FoodNutrients int
	LocalFoods    int
	Skipped       int
}

func (s Summary) String() string {
	return fmt.Sprintf("nutrients=%d foods=%d food_nutrients=%d local_foods=%d skipped=%d",
		s.Nutrients, s.Foods, s.FoodNutrients, s.LocalFoods, s.Skipped)
}

// Run executes the importer using the provided Config.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if out == nil {
		out = io.Discard
	}

	var store Store
	if !cfg.DryRun {
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create storage dir: %w", err)
			}
		}
		sqliteStore, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open food store: %w", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	}

	summary, err := Import(ctx, store, cfg)
	if err != nil {
		return err
	}
	verb := "imported"
	if cfg.DryRun {
		verb = "validated"
	}
	_, err = fmt.Fprintf(out, "%s %s\n", verb, summary)
	return err
}

// Import reads the configured files and writes them to store. A nil store
// only parses the files.
func Import(ctx context.Context, store Store, cfg Config) (Summary, error) {
	var summary Summary
	if dir := strings.TrimSpace(cfg.Dir); dir != "" {
		if err := importFoundation(ctx, store, dir, cfg.Limit, &summary); err != nil {
			return summary, err
		}
	}
	if path := strings.TrimSpace(cfg.LocalCSV); path != "" {
		if err := importLocal(ctx, store, path, &summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func importFoundation(ctx context.Context, store Store, dir string, limit int, summary *Summary) error {
	nutrientIDs := map[int64]int64{}
	nutrientUnits := map[int64]string{}
	err := readCSV(filepath.Join(dir, "nutrient.csv"), func(row csvRow) error {
		fdcNutrientID, err := row.integer("id")
		if err != nil {
			return err
		}
		number, _ := row.optionalInt64("nutrient_nbr")
		rank, _ := row.optionalFloat("rank")
		record := storage.NutrientRecord{
			FDCNutrientID:  fdcNutrientID,
			Name:           row.get("name"),
			UnitName:       row.get("unit_name"),
			NutrientNumber: int(number),
			Rank:           rank,
		}
		id := fdcNutrientID
		if store != nil {
			if id, err = store.UpsertNutrient(ctx, record); err != nil {
				return err
			}
		}
		nutrientIDs[fdcNutrientID] = id
		nutrientUnits[fdcNutrientID] = record.UnitName
		summary.Nutrients++
		return nil
	})
	if err != nil {
		return err
	}

	foodIDs := map[int64]int64{}
	err = readCSV(filepath.Join(dir, "food.csv"), func(row csvRow) error {
		if row.get("data_type") != storage.FoodTypeFoundation {
			return nil
		}
		if limit > 0 && len(foodIDs) >= limit {
			return nil
		}
		fdcID, err := row.integer("fdc_id")
		if err != nil {
			return err
		}
		categoryID, _ := row.optionalInt64("food_category_id")
		description := row.get("description")
		food := storage.FoodRecord{
			FDCID:          fdcID,
			DataType:       storage.FoodTypeFoundation,
			Description:    description,
			DescriptionEN:  description,
			FoodCategoryID: categoryID,
			PublishedAt:    parseDate(row.get("publication_date")),
		}
		id := fdcID
		if store != nil {
			if id, err = store.PutFood(ctx, food); err != nil {
				return err
			}
		}
		foodIDs[fdcID] = id
		summary.Foods++
		return nil
	})
	if err != nil {
		return err
	}

	return readCSV(filepath.Join(dir, "food_nutrient.csv"), func(row csvRow) error {
		fdcID, err := row.integer("fdc_id")
		if err != nil {
			return err
		}
		foodID, ok := foodIDs[fdcID]
		if !ok {
			return nil
		}
		fdcNutrientID, err := row.integer("nutrient_id")
		if err != nil {
			return err
		}
		nutrientID, ok := nutrientIDs[fdcNutrientID]
		amount, _ := row.optionalFloat("amount")
		if !ok || amount <= 0 {
			summary.Skipped++
			return nil
		}
		derivationID, _ := row.optionalInt64("derivation_id")
		record := storage.FoodNutrientRecord{
			FoodDataID:   foodID,
			NutrientID:   nutrientID,
			Amount:       amount,
			DerivationID: derivationID,
			Min:          row.floatPtr("min"),
			Max:          row.floatPtr("max"),
			Units:        nutrientUnits[fdcNutrientID],
		}
		if store != nil {
			if err := store.PutFoodNutrient(ctx, record); err != nil {
				return err
			}
		}
		summary.FoodNutrients++
		return nil
	})
}

func importLocal(ctx context.Context, store Store, path string, summary *Summary) error {
	return readCSV(path, func(row csvRow) error {
		name := strings.TrimSpace(row.get("product"))
		if name == "" {
			summary.Skipped++
			return nil
		}
		analysis := domain.Analysis{Description: name}
		var err error
		if analysis.Fat, err = row.decimal("fat"); err != nil {
			return err
		}
		if analysis.Protein, err = row.decimal("protein"); err != nil {
			return err
		}
		if analysis.Carbs, err = row.decimal("carbs"); err != nil {
			return err
		}
		if analysis.Calories, err = row.decimal("kcal"); err != nil {
			return err
		}
		if store != nil {
			if _, err := store.SaveAnalyzedFood(ctx, storage.FoodTypeLocalImport, analysis); err != nil {
				if errors.Is(err, storage.ErrConflict) {
					summary.Skipped++
					return nil
				}
				return err
			}
		}
		summary.LocalFoods++
		return nil
	})
}

// csvRow is one record addressed by header name.
type csvRow struct {
	line   int
	header map[string]int
	fields []string
}

func (r csvRow) get(column string) string {
	idx, ok := r.header[column]
	if !ok || idx >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[idx])
}

func (r csvRow) integer(column string) (int64, error) {
	value, err := strconv.ParseInt(r.get(column), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %s: %w", r.line, column, err)
	}
	return value, nil
}

func (r csvRow) optionalInt64(column string) (int64, bool) {
	raw := r.get(column)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return int64(value), true
}

func (r csvRow) decimal(column string) (float64, error) {
	value, err := domain.ParseDecimal(r.get(column))
	if err != nil {
		return 0, fmt.Errorf("line %d: %s: %w", r.line, column, err)
	}
	return value, nil
}

func (r csvRow) optionalFloat(column string) (float64, bool) {
	raw := r.get(column)
	if raw == "" {
		return 0, false
	}
	value, err := domain.ParseDecimal(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

func (r csvRow) floatPtr(column string) *float64 {
	value, ok := r.optionalFloat(column)
	if !ok {
		return nil
	}
	return &value
}

func readCSV(path string, fn func(csvRow) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read %s header: %w", filepath.Base(path), err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}

	line := 1
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if err := fn(csvRow{line: line, header: columns, fields: fields}); err != nil {
			return fmt.Errorf("import %s: %w", filepath.Base(path), err)
		}
	}
}

func parseDate(value string) time.Time {
	for _, layout := range []string{time.DateOnly, "1/2/2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
