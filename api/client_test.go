package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTables(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tables" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode([]Table{
			{Filename: "en-ueb-g2.ctb", DisplayName: "English UEB Grade 2", Language: "en", Grade: "g2"},
			{Filename: "fr-bfu-g2.ctb", DisplayName: "French Grade 2", Language: "fr", Grade: "g2"},
		})
	}))
	defer srv.Close()

	tables, err := NewClient(srv.URL).Tables(context.Background())
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("got %d tables", len(tables))
	}
	if tables[0].Filename != "en-ueb-g2.ctb" || tables[0].Grade != "g2" {
		t.Errorf("tables[0] = %+v", tables[0])
	}
}

func TestTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/translate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Text  string `json:"text"`
			Table string `json:"table"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Text != "hello" || req.Table != "en-ueb-g2.ctb" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(Translation{
			OriginalText: req.Text,
			Braille:      "⠓⠑⠇⠇⠕",
			TableUsed:    req.Table,
			Success:      true,
		})
	}))
	defer srv.Close()

	tr, err := NewClient(srv.URL).Translate(context.Background(), "hello", "en-ueb-g2.ctb")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if tr.Braille != "⠓⠑⠇⠇⠕" || !tr.Success {
		t.Errorf("translation = %+v", tr)
	}
}

func TestBackTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/back-translate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(BackTranslation{
			OriginalBraille: "⠓⠊",
			Text:            "hi",
			TableUsed:       "en-ueb-g2.ctb",
			Success:         true,
		})
	}))
	defer srv.Close()

	bt, err := NewClient(srv.URL).BackTranslate(context.Background(), "⠓⠊", "en-ueb-g2.ctb")
	if err != nil {
		t.Fatalf("BackTranslate: %v", err)
	}
	if bt.Text != "hi" {
		t.Errorf("back translation = %+v", bt)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Health{
			Status:          "healthy",
			LiblouisVersion: "3.28.0",
			ASRStatus:       "loaded",
			ASRModel:        "whisper-base",
		})
	}))
	defer srv.Close()

	h, err := NewClient(srv.URL).Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "healthy" || h.ASRModel != "whisper-base" {
		t.Errorf("health = %+v", h)
	}
}

func TestErrorStatusIncludesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Translation failed: unknown table"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Translate(context.Background(), "x", "nope.ctb")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "unknown table") {
		t.Errorf("error lacks detail: %v", err)
	}
}

func TestBaseURLTrailingSlash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "//") {
			t.Errorf("double slash in path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]Table{})
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL + "/").Tables(context.Background()); err != nil {
		t.Fatalf("Tables: %v", err)
	}
}
