package httpx

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"cafeteria-menu-system/shared/devicex"
	"cafeteria-menu-system/shared/logx"
)

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}
	cases := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"ok", `{"name":"soup"}`, false},
		{"empty", ``, true},
		{"unknown field", `{"name":"soup","extra":1}`, true},
		{"trailing object", `{"name":"a"}{"name":"b"}`, true},
		{"malformed", `{"name":`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.payload))
			var got body
			err := DecodeJSON(r, &got)
			if tc.wantErr != (err != nil) {
				t.Fatalf("wantErr=%v got %v", tc.wantErr, err)
			}
			if !tc.wantErr && got.Name != "soup" {
				t.Fatalf("unexpected body %+v", got)
			}
		})
	}
}

func TestWithRequestIDPropagates(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(rec, r)
	if seen != "abc" || rec.Header().Get("X-Request-ID") != "abc" {
		t.Fatalf("request id not propagated: %q %q", seen, rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected generated uuid, got %q", seen)
	}
}

func TestWithRequestLogIncludesDevice(t *testing.T) {
	var buf bytes.Buffer
	l := logx.NewWithWriter(&buf, "menu-api", "test", "dev", "info")
	loc := uuid.New()
	h := WithRequestLog(l, RequestLogOptions{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = devicex.WithDevice(r.Context(), devicex.DeviceContext{ID: uuid.New(), LocationID: loc})
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/menus/today", nil))

	out := buf.String()
	if !strings.Contains(out, loc.String()) || !strings.Contains(out, `"status_code":418`) {
		t.Fatalf("request log missing fields: %s", out)
	}
}

func TestWithRecover(t *testing.T) {
	h := WithRecover(logx.Discard(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestWithTimeout(t *testing.T) {
	h := WithTimeout(20*time.Millisecond, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(context.Background()))
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
}
