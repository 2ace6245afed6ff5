package fooddb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const detailsBody = `{
  "fdcId": 1750340,
  "description": "Apples, fuji, with skin, raw",
  "dataType": "Foundation",
  "foodNutrients": [
    {"amount": 0.148, "nutrient": {"number": "203", "name": "Protein", "unitName": "g"}},
    {"amount": 0.162, "nutrient": {"number": "204", "name": "Total lipid (fat)", "unitName": "g"}},
    {"amount": 15.7, "nutrient": {"number": "205", "name": "Carbohydrate, by difference", "unitName": "g"}},
    {"amount": 262, "nutrient": {"number": "268", "name": "Energy", "unitName": "kJ"}},
    {"amount": 63, "nutrient": {"number": "957", "name": "Energy (Atwater General Factors)", "unitName": "kcal"}},
    {"amount": 0, "nutrient": {"number": "291", "name": "Fiber", "unitName": "g"}}
  ]
}`

func TestUSDASearchSendsQueryAndParsesHits(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/foods/search" {
			t.Errorf("path = %q, want /foods/search", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("api_key") != "key-1" || query.Get("query") != "apple" || query.Get("pageSize") != "50" || query.Get("sortBy") != "score" {
			t.Errorf("query = %v", query)
		}
		_, _ = io.WriteString(w, `{"foods":[{"fdcId":1750340,"description":"Apples, fuji","dataType":"Foundation","foodCategory":"Fruits"}]}`)
	}))
	t.Cleanup(server.Close)

	client := NewUSDA(USDAConfig{APIKey: "key-1", BaseURL: server.URL})
	hits, err := client.Search(context.Background(), "apple", 80)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].FDCID != 1750340 || hits[0].Category != "Fruits" {
		t.Fatalf("hits = %+v", hits)
	}
}

func TestUSDADetailsParsesNutrientsByNumber(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/food/1750340" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = io.WriteString(w, detailsBody)
	}))
	t.Cleanup(server.Close)

	food, err := NewUSDA(USDAConfig{BaseURL: server.URL}).Details(context.Background(), 1750340)
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if food.Per100g.Calories != 63 {
		t.Fatalf("calories = %v, want 63 (kJ ignored)", food.Per100g.Calories)
	}
	if food.Per100g.Protein != 0.148 || food.Per100g.Fat != 0.162 || food.Per100g.Carbs != 15.7 {
		t.Fatalf("macros = %+v", food.Per100g)
	}
	if food.Name != "Apples, fuji, with skin, raw" {
		t.Fatalf("name = %q", food.Name)
	}
}

func TestUSDARateLimitIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	_, err := NewUSDA(USDAConfig{BaseURL: server.URL, InitialRetryInterval: time.Millisecond}).Search(context.Background(), "apple", 3)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestUSDARetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"foods":[]}`)
	}))
	t.Cleanup(server.Close)

	hits, err := NewUSDA(USDAConfig{BaseURL: server.URL, InitialRetryInterval: time.Millisecond}).Search(context.Background(), "apple", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 || calls.Load() != 3 {
		t.Fatalf("hits/calls = %d/%d, want 0/3", len(hits), calls.Load())
	}
}

func TestUSDAClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "invalid key")
	}))
	t.Cleanup(server.Close)

	_, err := NewUSDA(USDAConfig{BaseURL: server.URL, InitialRetryInterval: time.Millisecond}).Details(context.Background(), 1)
	if err == nil {
		t.Fatal("expected status error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestNewUSDADefaults(t *testing.T) {
	t.Parallel()

	client := NewUSDA(USDAConfig{})
	if client.apiKey != DemoAPIKey || client.baseURL != DefaultUSDABaseURL || client.maxTries != defaultMaxTries {
		t.Fatalf("defaults = %q %q %d", client.apiKey, client.baseURL, client.maxTries)
	}
}
