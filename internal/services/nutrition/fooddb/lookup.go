// Package fooddb resolves food descriptions to nutrition per 100 g from the
// local food tables and USDA FoodData Central.
package fooddb

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/louisbranch/eatbot/internal/services/nutrition/storage"
)

const (
	localSearchLimit  = 5
	remoteSearchLimit = 3
	translatedResults = 2
)

// Source identifies where a lookup result came from.
type Source = storage.AnalysisSource

// LocalSearcher searches the local food tables.
type LocalSearcher interface {
	SearchFoods(ctx context.Context, term string, limit int) ([]storage.FoodMatch, error)
}

// Remote is a FoodData Central style search API.
type Remote interface {
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
	Details(ctx context.Context, fdcID int64) (FoodNutrition, error)
}

// Result is a resolved food. Per100g is always per 100 g; Grams is the
// portion named in the text (100 when absent).
type Result struct {
	Query     string
	Name      string
	Source    Source
	Per100g   domain.Analysis
	Grams     float64
	HasAmount bool
}

// Portion scales the result to the requested grams.
func (r Result) Portion() domain.Analysis {
	return r.Per100g.ScaleTo(r.Grams)
}

// Lookup searches local foods first and then the remote database.
type Lookup struct {
	local  LocalSearcher
	remote Remote
}

// NewLookup builds a lookup; either source may be nil.
func NewLookup(local LocalSearcher, remote Remote) *Lookup {
	return &Lookup{local: local, remote: remote}
}

// Find resolves text such as "гречка 150 г". ok is false when no source knows
// the food. Remote failures are logged and reported as not found.
func (l *Lookup) Find(ctx context.Context, text string) (Result, bool, error) {
	product, grams := domain.SplitProductAmount(text)
	if product == "" {
		return Result{}, false, nil
	}
	base := Result{Query: product, Grams: grams, HasAmount: domain.HasDigits(text)}

	if l.local != nil {
		matches, err := l.local.SearchFoods(ctx, product, localSearchLimit)
		if err != nil {
			return Result{}, false, err
		}
		for _, match := range matches {
			if match.Per100g.Calories <= 0 {
				continue
			}
			result := base
			result.Name = match.DisplayName()
			result.Source = storage.SourceLocal
			result.Per100g = match.Per100g
			result.Per100g.Description = result.Name + " 100г"
			return result, true, nil
		}
	}

	if l.remote == nil {
		return Result{}, false, nil
	}
	food, ok, err := l.findRemote(ctx, product)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, false, ctx.Err()
		}
		if errors.Is(err, ErrRateLimited) {
			log.Printf("fooddb: usda rate limited for %q", product)
		} else {
			log.Printf("fooddb: usda lookup %q: %v", product, err)
		}
		return Result{}, false, nil
	}
	if !ok {
		return Result{}, false, nil
	}
	result := base
	result.Name = food.Name
	result.Source = storage.SourceUSDA
	result.Per100g = food.Per100g
	result.Per100g.Description = food.Name + " 100г"
	return result, true, nil
}

func (l *Lookup) findRemote(ctx context.Context, product string) (FoodNutrition, bool, error) {
	hits, err := l.remote.Search(ctx, product, remoteSearchLimit)
	if err != nil {
		return FoodNutrition{}, false, err
	}
	if len(hits) == 0 && IsRussian(product) {
		if english := Translate(product); !strings.EqualFold(english, product) {
			translated, err := l.remote.Search(ctx, english, remoteSearchLimit)
			if err != nil {
				return FoodNutrition{}, false, err
			}
			hits = append(hits, translated[:min(len(translated), translatedResults)]...)
		}
	}
	for _, hit := range hits {
		food, err := l.remote.Details(ctx, hit.FDCID)
		if err != nil {
			return FoodNutrition{}, false, err
		}
		if food.Per100g.Calories > 0 {
			if strings.TrimSpace(food.Name) == "" {
				food.Name = hit.Name
			}
			return food, true, nil
		}
	}
	return FoodNutrition{}, false, nil
}
