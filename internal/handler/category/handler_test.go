package category

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestListCategories(t *testing.T) {
	r := chi.NewRouter()
	New().RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/categories", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var infos []Info
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 categories, got %d", len(infos))
	}
	for _, info := range infos {
		if info.Name == "" || info.WelcomeMessage == "" {
			t.Fatalf("incomplete category %+v", info)
		}
	}
}
