package polygon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	return NewClient(baseURL, "test-key", 100, 5*time.Second, logger)
}

func TestSnapshotChain_FollowsPagination(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apiKey") != "test-key" {
			t.Errorf("missing apiKey param on %s", r.URL)
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprintf(w, `{
				"results": [
					{"details": {"strike_price": 470, "contract_type": "call", "expiration_date": "2025-11-14"},
					 "greeks": {"gamma": 0.01}, "open_interest": 100},
					{"details": {"strike_price": 470, "contract_type": "put", "expiration_date": "2025-11-14"},
					 "greeks": {"gamma": 0.02}, "open_interest": 50}
				],
				"next_url": "/v3/snapshot/options/SPY?cursor=page2"
			}`)
		case "page2":
			fmt.Fprint(w, `{
				"results": [
					{"details": {"strike_price": 475, "contract_type": "call", "expiration_date": "2025-11-14"},
					 "open_interest": 10}
				]
			}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	records, err := client.SnapshotChain(context.Background(), "SPY", "2025-11-14")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("records = %d, want 3 across both pages", len(records))
	}
	if records[0].Strike == nil || *records[0].Strike != 470 {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if records[2].Gamma != nil {
		t.Errorf("page-2 record should have nil gamma, got %v", *records[2].Gamma)
	}
}

func TestSnapshotChain_AuthErrorOnFirstPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"status":"NOT_AUTHORIZED","message":"plan does not include this data"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	records, err := client.SnapshotChain(context.Background(), "SPY", "2025-11-14")

	if records != nil {
		t.Errorf("expected no records, got %d", len(records))
	}
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %v", err)
	}
	if authErr.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", authErr.StatusCode)
	}
}

func TestSnapshotChain_MidWalkFailureAborts(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "page2" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"results": [
				{"details": {"strike_price": 470, "contract_type": "call"}, "greeks": {"gamma": 0.01}, "open_interest": 1},
				{"details": {"strike_price": 471, "contract_type": "call"}, "greeks": {"gamma": 0.01}, "open_interest": 1},
				{"details": {"strike_price": 472, "contract_type": "call"}, "greeks": {"gamma": 0.01}, "open_interest": 1}
			],
			"next_url": "/v3/snapshot/options/SPY?cursor=page2"
		}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	records, err := client.SnapshotChain(context.Background(), "SPY", "2025-11-14")

	if err == nil {
		t.Fatal("expected error when pagination fails mid-walk")
	}
	if records != nil {
		t.Errorf("no partial chain may be returned, got %d records", len(records))
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Errorf("expected *RequestError, got %v", err)
	}
}

func TestLastTrade(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/last/trade/SPY" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"last": map[string]any{"price": 471.25}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	price, err := client.LastTrade(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 471.25 {
		t.Errorf("price = %v, want 471.25", price)
	}
}

func TestNearestExpiration(t *testing.T) {
	expirations := []string{"2025-11-10", "2025-11-14", "2025-11-21"}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var results []map[string]any
		for _, exp := range expirations {
			results = append(results, map[string]any{"ticker": "O:SPY" + exp, "expiration_date": exp})
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	cases := []struct {
		asof string
		want string
	}{
		{"2025-11-14", "2025-11-14"}, // same-day preferred
		{"2025-11-15", "2025-11-21"}, // first on-or-after
		{"2025-12-01", "2025-11-21"}, // nothing ahead, latest known
	}
	for _, tc := range cases {
		got, err := client.NearestExpiration(context.Background(), "SPY", tc.asof)
		if err != nil {
			t.Fatalf("asof %s: unexpected error: %v", tc.asof, err)
		}
		if got != tc.want {
			t.Errorf("asof %s: expiration = %s, want %s", tc.asof, got, tc.want)
		}
	}
}

func TestNearestExpiration_NoResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results": []}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.NearestExpiration(context.Background(), "SPY", "2025-11-14")
	if !errors.Is(err, ErrNoExpirations) {
		t.Errorf("expected ErrNoExpirations, got %v", err)
	}
}
