package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/soochol/cdp/internal/pipeline"
)

func TestHealthzReportsOK(t *testing.T) {
	srv := NewServer(nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler("/healthz", "", nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("body = %q, want it to contain ok", rec.Body.String())
	}
}

func TestValidateAcceptsWellFormedTemplate(t *testing.T) {
	srv := NewServer(pipeline.DefaultRegistry())
	body := strings.NewReader("name: p\ninput:\n  generator:\n    seconds: 1\n")
	req := httptest.NewRequest(http.MethodPost, "/validate", body)
	rec := httptest.NewRecorder()
	srv.Handler("/healthz", "", nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"valid":true`) {
		t.Fatalf("body = %q, want valid:true", rec.Body.String())
	}
}

func TestValidateRejectsMalformedTemplate(t *testing.T) {
	srv := NewServer(pipeline.DefaultRegistry())
	body := strings.NewReader("input:\n  generator: {}\n")
	req := httptest.NewRequest(http.MethodPost, "/validate", body)
	rec := httptest.NewRecorder()
	srv.Handler("/healthz", "", nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body=%s", rec.Code, rec.Body.String())
	}
}
