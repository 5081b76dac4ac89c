package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"piatto/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

type recordedCall struct {
	endpoint string
	method   string
	status   int
}

type mockRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (m *mockRecorder) RecordRequest(endpoint, method string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, recordedCall{endpoint, method, status})
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&config.Config{APIURL: server.URL + "/api"}, opts...)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestGenerate(t *testing.T) {
	t.Run("BareID", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/api/preparing/generate" {
				t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			}
			if r.Header.Get("X-Request-ID") == "" {
				t.Error("Expected X-Request-ID header")
			}
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			if body["prompt"] != "Pasta" {
				t.Errorf("Expected prompt 'Pasta', got %v", body["prompt"])
			}
			if body["preparing_session_id"] != nil {
				t.Errorf("Expected null preparing_session_id, got %v", body["preparing_session_id"])
			}
			if _, ok := body["written_ingredients"].([]interface{}); !ok {
				t.Errorf("Expected written_ingredients array, got %v", body["written_ingredients"])
			}
			fmt.Fprint(w, `42`)
		})

		id, err := client.Generate(context.Background(), GenerateRequest{Prompt: "Pasta"})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if id != 42 {
			t.Errorf("Expected session id 42, got %d", id)
		}
	})

	t.Run("ObjectID", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"preparing_session_id": 7}`)
		})
		sid := int64(7)
		id, err := client.Generate(context.Background(), GenerateRequest{Prompt: "Suppe", PreparingSessionID: &sid})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if id != 7 {
			t.Errorf("Expected session id 7, got %d", id)
		}
	})

	t.Run("EmptyPromptRejected", func(t *testing.T) {
		called := false
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })
		_, err := client.Generate(context.Background(), GenerateRequest{})
		if KindOf(err) != KindBadRequest {
			t.Fatalf("Expected bad request error, got %v", err)
		}
		if called {
			t.Error("Expected no request for an invalid body")
		}
	})
}

func TestOptions(t *testing.T) {
	rec := &mockRecorder{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/preparing/9/get_options" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `[
			{"id": 1, "title": "Risotto", "image_url": null, "difficulty": "easy", "total_time_minutes": 30, "food_category": "vegetarian"},
			{"id": 2, "title": "Curry", "image_url": "c.png"}
		]`)
	}, WithRecorder(rec))

	opts, err := client.Options(context.Background(), 9)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(opts) != 2 {
		t.Fatalf("Expected 2 options, got %d", len(opts))
	}
	if opts[0].ImageURL != nil {
		t.Error("Expected nil image url for first option")
	}
	if opts[1].ImageURL == nil || *opts[1].ImageURL != "c.png" {
		t.Error("Expected image url 'c.png' for second option")
	}
	if len(rec.calls) != 1 || rec.calls[0].endpoint != "/preparing/{id}/get_options" || rec.calls[0].status != 200 {
		t.Errorf("Unexpected recorded calls: %+v", rec.calls)
	}
}

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
	}{
		{http.StatusBadRequest, KindBadRequest},
		{http.StatusUnauthorized, KindUnauthorized},
		{http.StatusNotFound, KindNotFound},
		{http.StatusTooManyRequests, KindRateLimited},
		{http.StatusInternalServerError, KindServer},
		{http.StatusBadGateway, KindServer},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			err := client.FinishPreparing(context.Background(), 1)
			if KindOf(err) != tc.kind {
				t.Errorf("Expected kind %s, got %s (%v)", tc.kind, KindOf(err), err)
			}
		})
	}

	t.Run("Network", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		client, _ := NewClient(&config.Config{APIURL: url})
		_, err := client.Options(context.Background(), 1)
		if KindOf(err) != KindNetwork {
			t.Errorf("Expected network error, got %v", err)
		}
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.Status != 0 {
			t.Errorf("Expected *Error without status, got %v", err)
		}
	})
}

func TestImageAnalysisNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	analysis, err := client.ImageAnalysis(context.Background(), 3)
	if err != nil {
		t.Fatalf("Expected 404 to mean no analysis, got %v", err)
	}
	if analysis != nil {
		t.Errorf("Expected nil analysis, got %+v", analysis)
	}
}

func TestCurrentRecipes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/preparing/4/current-recipes/11" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		switch r.Method {
		case http.MethodDelete:
			fmt.Fprint(w, `[12, 13]`)
		case http.MethodPost:
			fmt.Fprint(w, `{"current_recipe_ids": [11, 12, 13]}`)
		}
	})

	ids, err := client.RemoveCurrentRecipe(context.Background(), 4, 11)
	if err != nil || len(ids) != 2 {
		t.Fatalf("Expected [12 13], got %v (%v)", ids, err)
	}
	ids, err = client.AddCurrentRecipe(context.Background(), 4, 11)
	if err != nil || len(ids) != 3 {
		t.Fatalf("Expected [11 12 13], got %v (%v)", ids, err)
	}
}

func TestUpdateCollectionRecipes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/collection/5/recipes" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if strings.TrimSpace(string(body)) != `{"recipe_ids":[1,2]}` {
			t.Errorf("Unexpected body %s", body)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	if err := client.UpdateCollectionRecipes(context.Background(), 5, []int64{1, 2}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func TestAskQuestion(t *testing.T) {
	for name, payload := range map[string]string{
		"Object": `{"answer": "Etwa 10 Minuten."}`,
		"String": `"Etwa 10 Minuten."`,
	} {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				var body askQuestionRequest
				json.NewDecoder(r.Body).Decode(&body)
				if body.CookingSessionID != 8 || body.Prompt != "Wie lange kochen?" {
					t.Errorf("Unexpected body %+v", body)
				}
				fmt.Fprint(w, payload)
			})
			answer, err := client.AskQuestion(context.Background(), 8, "Wie lange kochen?")
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if answer != "Etwa 10 Minuten." {
				t.Errorf("Unexpected answer '%s'", answer)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	client, err := NewClient(&config.Config{APIURL: server.URL, APIKey: "client-1:0a0b0c0d"})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if _, err := client.Collections(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		t.Fatalf("Expected bearer token, got '%s'", authHeader)
	}
	token, err := jwt.Parse(strings.TrimPrefix(authHeader, "Bearer "), func(tok *jwt.Token) (interface{}, error) {
		if tok.Header["kid"] != "client-1" {
			t.Errorf("Expected kid 'client-1', got %v", tok.Header["kid"])
		}
		return []byte{0x0a, 0x0b, 0x0c, 0x0d}, nil
	}, jwt.WithAudience(tokenAudience))
	if err != nil || !token.Valid {
		t.Errorf("Expected a valid token, got %v", err)
	}

	if _, err := NewClient(&config.Config{APIURL: server.URL, APIKey: "missing-secret"}); err == nil {
		t.Error("Expected an error for a malformed api key")
	}
}
