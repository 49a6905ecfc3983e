package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"1M", 1 << 20},
		{"10M", 10 << 20},
		{"64MB", 64 << 20},
		{"512K", 512 << 10},
		{"1G", 1 << 30},
		{"1024", 1024},
		{"", 1 << 20},        // default
		{"invalid", 1 << 20}, // default on error
		{"-5M", 1 << 20},
	}

	for _, tt := range tests {
		got := ParseSize(tt.input)
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func expectTooLarge(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error for oversized body")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", httpErr.Code)
	}
}

func TestBodyLimit_AllowsSmallBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ccda/documents?name=a.xml", strings.NewReader(`<ClinicalDocument/>`))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := func(c echo.Context) error {
		b, err := io.ReadAll(c.Request().Body)
		if err != nil {
			t.Fatalf("failed to read body: %v", err)
		}
		if string(b) != `<ClinicalDocument/>` {
			t.Errorf("unexpected body %q", b)
		}
		called = true
		return c.NoContent(http.StatusCreated)
	}

	if err := BodyLimit("1M", "10M")(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestBodyLimit_RejectsOversizedBody_ContentLength(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ccda/documents", bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := func(c echo.Context) error {
		called = true
		return nil
	}

	expectTooLarge(t, BodyLimit("1K", "10M")(handler)(c))
	if called {
		t.Error("handler should not run when Content-Length is over the limit")
	}
}

func TestBodyLimit_RejectsOversizedBody_Streaming(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ccda/documents", bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	}

	expectTooLarge(t, BodyLimit("1K", "10M")(handler)(c))
}

func TestBodyLimit_BatchGetsLargerLimit(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, BatchPath, bytes.NewReader(bytes.Repeat([]byte("x"), 2048)))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		_, err := io.ReadAll(c.Request().Body)
		return err
	}

	if err := BodyLimit("1K", "4K")(handler)(c); err != nil {
		t.Fatalf("expected batch body within batch limit, got %v", err)
	}
}

func TestBodyLimit_NoBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ccda/statistics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := BodyLimit("1K", "4K")(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
