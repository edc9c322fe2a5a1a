package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/pagesmith/kit"
)

func TestDefaultStack(t *testing.T) {
	var gotID, gotTransport string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = kit.GetRequestID(r.Context())
		gotTransport = kit.GetTransport(r.Context())
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	var handler http.Handler = h
	stack := DefaultStack(8)
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/merge", strings.NewReader("small")))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing security headers")
	}
	if id := rec.Header().Get("X-Request-ID"); id == "" || id != gotID || !strings.HasPrefix(id, "req_") {
		t.Fatalf("request id header %q, context %q", id, gotID)
	}
	if gotTransport != "http" {
		t.Fatalf("transport = %q", gotTransport)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/merge", strings.NewReader("way more than eight bytes")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body status = %d", rec.Code)
	}
}

func TestRequestID_KeepsClientID(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-ID") != "client-42" {
		t.Fatalf("id = %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	h := BasicAuth("admin", hash, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		path, user, pass string
		auth             bool
		want             int
	}{
		{"/health", "", "", false, http.StatusOK},
		{"/api/merge", "", "", false, http.StatusUnauthorized},
		{"/api/merge", "admin", "wrong", true, http.StatusUnauthorized},
		{"/api/merge", "root", "s3cret", true, http.StatusUnauthorized},
		{"/api/merge", "admin", "s3cret", true, http.StatusOK},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, c.path, nil)
		if c.auth {
			req.SetBasicAuth(c.user, c.pass)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Errorf("%s as %q: status = %d, want %d", c.path, c.user, rec.Code, c.want)
		}
	}
}
