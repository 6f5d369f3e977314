package api

import (
	"bytes"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"entregaflow-api/domain"
)

func gzipBody(t *testing.T, body string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(body)); err != nil {
		t.Fatalf("compress body: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	return &buf
}

func TestGzipRequestMiddlewareDecompressesMoveBody(t *testing.T) {
	resetActivitySenderForTests()
	t.Cleanup(resetActivitySenderForTests)

	e := echo.New()
	store := &mockStore{board: populatedBoard(), agency: teamAgency()}
	Register(e, store, mockAuth{id: "editor-1"}, adminSet(), nil, log.New())

	body := `{"taskId":"t1","from":"todo","fromIndex":0,"to":"inProgress","toIndex":0}`
	req := httptest.NewRequest(http.MethodPost, "/api/agencies/ag-1/board/moves", gzipBody(t, body))
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d, body %q", rec.Code, rec.Body.String())
	}
	if store.updatedBoard == nil {
		t.Fatal("expected board to be persisted")
	}
	prog := store.updatedBoard.Columns[domain.ColumnInProgress].Items
	if len(prog) != 2 || prog[0].ID != "t1" {
		t.Fatalf("unexpected inProgress items: %#v", prog)
	}
}

func TestGzipRequestMiddlewarePassesPlainBodies(t *testing.T) {
	handler := gzipRequestMiddleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}

func TestGzipRequestMiddlewareRejectsCorruptBody(t *testing.T) {
	handler := gzipRequestMiddleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("not gzip at all"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()

	err := handler(e.NewContext(req, rec))
	if code := httpErrorCode(t, err); code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", code)
	}
}

func TestHasGzipEncoding(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{name: "empty", header: "", want: false},
		{name: "gzip", header: "gzip", want: true},
		{name: "mixed_case", header: "GZip", want: true},
		{name: "in_list", header: "br, gzip", want: true},
		{name: "padded", header: "  gzip  ", want: true},
		{name: "other", header: "deflate", want: false},
		{name: "substring", header: "x-gzip-like", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasGzipEncoding(tt.header); got != tt.want {
				t.Fatalf("hasGzipEncoding(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}
