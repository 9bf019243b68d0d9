package risk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPCalculator_Calculate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Bad request body: %v", err)
		}
		if req["contact_id"] != "con_1" {
			t.Errorf("Expected contact_id con_1, got %s", req["contact_id"])
		}
		json.NewEncoder(w).Encode(Result{
			RiskScore:       72,
			RiskFactors:     []string{"no contact in 14 days"},
			Recommendations: []string{"schedule a follow-up call"},
			EngagementScore: 35,
		})
	}))
	defer srv.Close()

	calc := NewHTTPCalculator(srv.URL)
	result, err := calc.Calculate(context.Background(), "usr_one", "con_1")
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if result.RiskScore != 72 {
		t.Errorf("Expected score 72, got %d", result.RiskScore)
	}
	if len(result.RiskFactors) != 1 {
		t.Errorf("Expected 1 risk factor, got %d", len(result.RiskFactors))
	}
}

func TestHTTPCalculator_NoContentMeansNoResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	calc := NewHTTPCalculator(srv.URL)
	result, err := calc.Calculate(context.Background(), "usr_one", "con_1")
	if err != nil {
		t.Fatalf("Expected no error for 204, got %v", err)
	}
	if result != nil {
		t.Errorf("Expected nil result for 204, got %+v", result)
	}
}

func TestHTTPCalculator_EmptyBodyMeansNoResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	calc := NewHTTPCalculator(srv.URL)
	result, err := calc.Calculate(context.Background(), "usr_one", "con_1")
	if err != nil {
		t.Fatalf("Expected no error for empty body, got %v", err)
	}
	if result != nil {
		t.Errorf("Expected nil result for empty body, got %+v", result)
	}
}

func TestHTTPCalculator_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "scoring model offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	calc := NewHTTPCalculator(srv.URL)
	if _, err := calc.Calculate(context.Background(), "usr_one", "con_1"); err == nil {
		t.Fatal("Expected error for 503 response")
	}
}

func TestHTTPCalculator_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "scoring model offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	calc := NewHTTPCalculator(srv.URL)
	for i := 0; i < 5; i++ {
		if _, err := calc.Calculate(context.Background(), "usr_one", "con_1"); err == nil {
			t.Fatal("Expected error for 503 response")
		}
	}

	_, err := calc.Calculate(context.Background(), "usr_one", "con_1")
	if !errors.Is(err, ErrCalculatorUnavailable) {
		t.Fatalf("Expected ErrCalculatorUnavailable after circuit opens, got %v", err)
	}
	if hits != 5 {
		t.Errorf("Expected 5 endpoint hits before circuit opened, got %d", hits)
	}
}

func TestHTTPCalculator_RejectsOutOfRangeScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Result{RiskScore: 140})
	}))
	defer srv.Close()

	calc := NewHTTPCalculator(srv.URL)
	if _, err := calc.Calculate(context.Background(), "usr_one", "con_1"); err == nil {
		t.Fatal("Expected error for out-of-range score")
	}
}
