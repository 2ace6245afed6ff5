package fooddb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/louisbranch/eatbot/internal/services/nutrition/domain"
	"github.com/tidwall/gjson"
)

const (
	// DefaultUSDABaseURL is the FoodData Central API root.
	DefaultUSDABaseURL = "https://api.nal.usda.gov/fdc/v1"
	// DemoAPIKey is the shared rate-limited FoodData Central key.
	DemoAPIKey = "DEMO_KEY"

	maxSearchPageSize = 50
	defaultMaxTries   = 3
	maxErrorBody      = 4096
)

// ErrRateLimited indicates FoodData Central answered 429.
var ErrRateLimited = errors.New("usda rate limit exceeded")

// USDAConfig configures the FoodData Central client.
type USDAConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	MaxTries   uint
	// InitialRetryInterval overrides the first backoff interval.
	InitialRetryInterval time.Duration
}

// USDA is a FoodData Central HTTP client.
type USDA struct {
	apiKey          string
	baseURL         string
	httpClient      *http.Client
	maxTries        uint
	initialInterval time.Duration
}

// SearchHit is one food from a search page.
type SearchHit struct {
	FDCID    int64
	Name     string
	DataType string
	Category string
}

// FoodNutrition is a food with nutrition per 100 g.
type FoodNutrition struct {
	FDCID    int64
	Name     string
	DataType string
	Per100g  domain.Analysis
}

// NewUSDA builds a client, defaulting to the demo key.
func NewUSDA(cfg USDAConfig) *USDA {
	client := &USDA{
		apiKey:          strings.TrimSpace(cfg.APIKey),
		baseURL:         strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		httpClient:      cfg.HTTPClient,
		maxTries:        cfg.MaxTries,
		initialInterval: cfg.InitialRetryInterval,
	}
	if client.apiKey == "" {
		client.apiKey = DemoAPIKey
	}
	if client.baseURL == "" {
		client.baseURL = DefaultUSDABaseURL
	}
	if client.httpClient == nil {
		client.httpClient = http.DefaultClient
	}
	if client.maxTries == 0 {
		client.maxTries = defaultMaxTries
	}
	return client
}

// Search lists foods matching query, best score first.
func (c *USDA) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("pageSize", strconv.Itoa(min(limit, maxSearchPageSize)))
	params.Set("sortBy", "score")
	params.Set("sortOrder", "desc")

	body, err := c.get(ctx, "/foods/search", params)
	if err != nil {
		return nil, err
	}
	var hits []SearchHit
	for _, food := range gjson.GetBytes(body, "foods").Array() {
		hits = append(hits, SearchHit{
			FDCID:    food.Get("fdcId").Int(),
			Name:     food.Get("description").String(),
			DataType: food.Get("dataType").String(),
			Category: food.Get("foodCategory").String(),
		})
	}
	return hits, nil
}

// Details loads nutrition per 100 g for one food.
func (c *USDA) Details(ctx context.Context, fdcID int64) (FoodNutrition, error) {
	if fdcID <= 0 {
		return FoodNutrition{}, fmt.Errorf("fdc id is required")
	}
	body, err := c.get(ctx, "/food/"+strconv.FormatInt(fdcID, 10), url.Values{})
	if err != nil {
		return FoodNutrition{}, err
	}
	food := gjson.ParseBytes(body)
	out := FoodNutrition{
		FDCID:    food.Get("fdcId").Int(),
		Name:     food.Get("description").String(),
		DataType: food.Get("dataType").String(),
	}
	out.Per100g = parseNutrients(food.Get("foodNutrients"))
	out.Per100g.Description = out.Name
	return out, nil
}

// parseNutrients maps nutrients by number first, then by name; any KCAL
// or energy entry counts as calories. Non-positive amounts are ignored.
func parseNutrients(nutrients gjson.Result) domain.Analysis {
	var out domain.Analysis
	for _, item := range nutrients.Array() {
		amount := item.Get("amount").Float()
		if amount <= 0 {
			continue
		}
		number := strings.TrimSpace(item.Get("nutrient.number").String())
		name := item.Get("nutrient.name").String()
		unit := strings.ToUpper(item.Get("nutrient.unitName").String())

		switch {
		case number == "208" || number == "957" || strings.Contains(name, "Energy") || unit == "KCAL":
			if unit == "KJ" {
				continue
			}
			out.Calories = amount
		case number == "203" || name == "Protein":
			out.Protein = amount
		case number == "204" || strings.Contains(name, "Total lipid (fat)"):
			out.Fat = amount
		case number == "205" || strings.Contains(name, "Carbohydrate, by difference"):
			out.Carbs = amount
		}
	}
	return out
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("usda status %d: %s", e.status, e.body)
}

// get issues a GET, retrying transport failures and 5xx replies with
// exponential backoff.
func (c *USDA) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	params.Set("api_key", c.apiKey)
	endpoint := c.baseURL + path + "?" + params.Encode()

	policy := backoff.NewExponentialBackOff()
	if c.initialInterval > 0 {
		policy.InitialInterval = c.initialInterval
	}
	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("build usda request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		res, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, fmt.Errorf("usda request failed: %w", redactKey(err, c.apiKey))
		}
		defer res.Body.Close()

		data, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, fmt.Errorf("read usda response: %w", err)
		}
		switch {
		case res.StatusCode == http.StatusTooManyRequests:
			return nil, backoff.Permanent(ErrRateLimited)
		case res.StatusCode >= 500:
			return nil, &statusError{status: res.StatusCode, body: truncate(data)}
		case res.StatusCode < 200 || res.StatusCode >= 300:
			return nil, backoff.Permanent(&statusError{status: res.StatusCode, body: truncate(data)})
		}
		return data, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func truncate(data []byte) string {
	if len(data) > maxErrorBody {
		data = data[:maxErrorBody]
	}
	return strings.TrimSpace(string(data))
}

// redactKey removes the API key from URL errors.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), key, "REDACTED"))
}
