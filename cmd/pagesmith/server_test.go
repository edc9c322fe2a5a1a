package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/pagesmith/assemble"
	"github.com/hazyhaar/pagesmith/dbopen"
	"github.com/hazyhaar/pagesmith/internal/memdoc"
	"github.com/hazyhaar/pagesmith/journal"
	"github.com/hazyhaar/pagesmith/pagepipe"
	"github.com/hazyhaar/pagesmith/sizeplan"
	"github.com/klauspost/compress/zip"
)

type part struct {
	field, name string
	data        []byte
}

// testServer runs the router over memdoc documents with an in-memory journal.
func testServer(t *testing.T, cfg *serverConfig) *httptest.Server {
	t.Helper()
	j := journal.New(dbopen.OpenMemory(t, dbopen.WithSchema(journal.Schema)))
	pipe := pagepipe.New(cfg.Pipeline, pagepipe.WithLibrary(memdoc.Library{}), pagepipe.WithJournal(j))
	ts := httptest.NewServer(newRouter(&server{pipe: pipe}, cfg))
	t.Cleanup(ts.Close)
	return ts
}

func multipartBody(t *testing.T, parts []part, fields map[string][]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(p.data)
	}
	for k, vs := range fields {
		for _, v := range vs {
			mw.WriteField(k, v)
		}
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func post(t *testing.T, url string, parts []part, fields map[string][]string) *http.Response {
	t.Helper()
	body, ct := multipartBody(t, parts, fields)
	resp, err := http.Post(url, ct, body)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readAll(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func zipLabels(t *testing.T, data []byte) map[string][]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	out := map[string][]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		l, err := memdoc.Labels(b)
		if err != nil {
			t.Fatalf("%s: %v", f.Name, err)
		}
		out[f.Name] = l
	}
	return out
}

func TestHealth(t *testing.T) {
	ts := testServer(t, &serverConfig{})
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 || resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("status=%d request-id=%q", resp.StatusCode, resp.Header.Get("X-Request-ID"))
	}
}

func TestMergeEndpoint(t *testing.T) {
	ts := testServer(t, &serverConfig{})
	resp := post(t, ts.URL+"/api/merge", []part{
		{"files", "a.pdf", memdoc.Numbered("a", 4)},
		{"files", "broken.pdf", []byte("garbage")},
		{"files", "b.pdf", memdoc.Numbered("b", 2)},
	}, map[string][]string{"ranges": {"2, 4", "", "2"}})

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d: %s", resp.StatusCode, readAll(t, resp))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content-type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "merged_document.pdf") {
		t.Errorf("content-disposition = %q", cd)
	}
	if resp.Header.Get("X-Pagesmith-Skipped") != "1" || resp.Header.Get("X-Pagesmith-Pages") != "3" {
		t.Errorf("headers = %v", resp.Header)
	}
	got, err := memdoc.Labels(readAll(t, resp))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"a2", "a4", "b2"}) {
		t.Fatalf("pages = %v", got)
	}
}

func TestMergeEndpoint_JSONReport(t *testing.T) {
	ts := testServer(t, &serverConfig{})
	resp := post(t, ts.URL+"/api/merge?format=json", []part{
		{"files", "a.pdf", memdoc.Numbered("a", 2)},
	}, map[string][]string{"ranges": {"5"}})
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Pagesmith-Empty") != "true" {
		t.Errorf("empty header missing")
	}
	var res pagepipe.MergeResult
	if err := json.Unmarshal(readAll(t, resp), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Empty || len(res.Warnings) == 0 {
		t.Fatalf("report = %+v", res)
	}
}

func TestSplitRangesEndpoint(t *testing.T) {
	ts := testServer(t, &serverConfig{})
	resp := post(t, ts.URL+"/api/split/ranges", []part{
		{"file", "Quarterly Report.pdf", memdoc.Numbered("p", 6)},
	}, map[string][]string{"ranges": {"1-2, 5-6"}})
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d: %s", resp.StatusCode, readAll(t, resp))
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "split_pages.zip") {
		t.Errorf("content-disposition = %q", cd)
	}
	files := zipLabels(t, readAll(t, resp))
	want := map[string][]string{
		"Quarterly Report_part1.pdf": {"p1", "p2"},
		"Quarterly Report_part2.pdf": {"p5", "p6"},
	}
	if !reflect.DeepEqual(files, want) {
		t.Fatalf("archive = %v", files)
	}
}

func TestSplitSizeEndpoint(t *testing.T) {
	ts := testServer(t, &serverConfig{})
	target := fmt.Sprintf("%g", 10.0/sizeplan.MiB)
	resp := post(t, ts.URL+"/api/split/size", []part{
		{"file", "r.pdf", memdoc.Numbered("p", 10)},
	}, map[string][]string{"target_mb": {target}})
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d: %s", resp.StatusCode, readAll(t, resp))
	}
	if resp.Header.Get("X-Pagesmith-Parts") != "5" || resp.Header.Get("X-Pagesmith-Pages-Per-File") != "2" {
		t.Fatalf("headers = %v", resp.Header)
	}
	files := zipLabels(t, readAll(t, resp))
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	if len(names) != 5 || names[0] != "r_size_part1.pdf" {
		t.Fatalf("names = %v", names)
	}
}

func TestErrorStatuses(t *testing.T) {
	ts := testServer(t, &serverConfig{})
	tests := []struct {
		name   string
		path   string
		parts  []part
		fields map[string][]string
		want   int
	}{
		{"unreadable", "/api/split/ranges", []part{{"file", "a.pdf", []byte("junk")}}, map[string][]string{"ranges": {"1"}}, 422},
		{"unsupported", "/api/inspect", []part{{"file", "a.docx", memdoc.Numbered("p", 1)}}, nil, 415},
		{"no groups", "/api/split/ranges", []part{{"file", "a.pdf", memdoc.Numbered("p", 2)}}, map[string][]string{"ranges": {"7-9"}}, 400},
		{"blank ranges", "/api/split/ranges", []part{{"file", "a.pdf", memdoc.Numbered("p", 2)}}, nil, 400},
		{"bad target", "/api/split/size", []part{{"file", "a.pdf", memdoc.Numbered("p", 2)}}, map[string][]string{"target_mb": {"-2"}}, 400},
		{"missing file", "/api/inspect", nil, nil, 400},
		{"no inputs", "/api/merge", nil, nil, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts.URL+tt.path, tt.parts, tt.fields)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.want, readAll(t, resp))
			}
			var body map[string]string
			if err := json.Unmarshal(readAll(t, resp), &body); err != nil || body["error"] == "" {
				t.Fatalf("error body = %v (%v)", body, err)
			}
		})
	}
}

func TestTooLarge(t *testing.T) {
	ts := testServer(t, &serverConfig{Pipeline: pagepipe.Config{MaxFileSize: 16}})
	resp := post(t, ts.URL+"/api/inspect", []part{{"file", "a.pdf", memdoc.Numbered("p", 20)}}, nil)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestMergeEndpoint_OversizedFileSkipped(t *testing.T) {
	// WHAT: A merge upload over the size cap is skipped; the rest still merges.
	// WHY: A batch must degrade per file rather than fail with 413 for everyone.
	ts := testServer(t, &serverConfig{Pipeline: pagepipe.Config{MaxFileSize: 16}})
	resp := post(t, ts.URL+"/api/merge?format=json", []part{
		{"files", "big.pdf", memdoc.Numbered("p", 20)},
		{"files", "s.pdf", memdoc.Numbered("s", 1)},
	}, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d: %s", resp.StatusCode, readAll(t, resp))
	}
	if got := resp.Header.Get("X-Pagesmith-Skipped"); got != "1" {
		t.Fatalf("skipped header = %q", got)
	}
	var res pagepipe.MergeResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Name != "big.pdf" || len(res.Sources) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestJournalOpensFromBinary(t *testing.T) {
	// WHAT: The serve path can open a file-backed journal without test-only imports.
	// WHY: The SQLite driver must be registered by production code, not only by tests.
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	j.Close()
}

func TestPlanAndParseEndpoints(t *testing.T) {
	ts := testServer(t, &serverConfig{})

	resp, err := http.Get(ts.URL + "/api/plan?pages=64&bytes=33554432")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var plan struct {
		TargetMB float64       `json:"target_mb"`
		Plan     sizeplan.Plan `json:"plan"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		t.Fatal(err)
	}
	if plan.TargetMB != 2 || plan.Plan.PagesPerOutput != 4 || plan.Plan.OutputCount != 16 {
		t.Fatalf("plan = %+v", plan)
	}

	bad, err := http.Get(ts.URL + "/api/plan?pages=0&bytes=10")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != 400 {
		t.Fatalf("zero pages status = %d", bad.StatusCode)
	}

	pr, err := http.Get(ts.URL + "/api/parse?expr=" + "3-1,2,9&pages=5")
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Body.Close()
	var preview pagepipe.ParsePreview
	if err := json.NewDecoder(pr.Body).Decode(&preview); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(preview.Pages, []int{2}) || len(preview.Dropped) != 2 {
		t.Fatalf("preview = %+v", preview)
	}
}

func TestParseEndpoint_RejectsHugePageCount(t *testing.T) {
	// WHAT: /api/parse refuses page counts beyond the preview cap and negative ones.
	// WHY: pages comes straight from the query string; 2^50 must not size an allocation.
	ts := testServer(t, &serverConfig{})
	for _, pages := range []string{"1125899906842624", "-1", "x"} {
		resp, err := http.Get(ts.URL + "/api/parse?expr=1&pages=" + pages)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != 400 {
			t.Errorf("pages=%s status = %d, want 400", pages, resp.StatusCode)
		}
	}
}

func TestOperationsEndpoint(t *testing.T) {
	ts := testServer(t, &serverConfig{})
	post(t, ts.URL+"/api/inspect", []part{{"file", "a.pdf", memdoc.Numbered("p", 3)}}, nil)

	resp, err := http.Get(ts.URL + "/api/operations?limit=5")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var entries []journal.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
	e := entries[0]
	if e.Op != "inspect" || e.Transport != "http" || !strings.HasPrefix(e.RequestID, "req_") || e.Pages != 3 {
		t.Fatalf("entry = %+v", e)
	}
}

func TestBasicAuth(t *testing.T) {
	// WHAT: With auth configured, /api needs credentials but /health does not.
	// WHY: Load balancer health checks carry no credentials.
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	ts := testServer(t, &serverConfig{AuthUser: "ops", AuthPasswordHash: string(hash)})

	health, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	health.Body.Close()
	if health.StatusCode != 200 {
		t.Fatalf("health status = %d", health.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/api/operations")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 401 {
		t.Fatalf("anonymous status = %d", resp.StatusCode)
	}

	for pw, want := range map[string]int{"wrong": 401, "s3cret": 200} {
		req, _ := http.NewRequest("GET", ts.URL+"/api/operations", nil)
		req.SetBasicAuth("ops", pw)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("password %q: status = %d, want %d", pw, resp.StatusCode, want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", assemble.ErrUnreadableDocument), 422},
		{fmt.Errorf("x: %w", assemble.ErrNoGroups), 400},
		{sizeplan.ErrInvalidSizeBudget, 400},
		{pagepipe.ErrTooManyInputs, 400},
		{fmt.Errorf("x: %w", pagepipe.ErrInvalidPageCount), 400},
		{pagepipe.ErrTooLarge, 413},
		{&http.MaxBytesError{Limit: 1}, 413},
		{pagepipe.ErrUnsupportedFormat, 415},
		{errors.New("disk on fire"), 500},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestServerConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagesmith.yaml")
	yml := `addr: ":9000"
journal_db: data/journal.db
journal_retention: 48h
pipeline:
  max_inputs: 5
  default_target_mb: 1.5
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadServerConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Setenv("PAGESMITH_ADDR", ":9100")
	t.Setenv("PAGESMITH_MAX_CONNS", "8")
	if err := cfg.applyEnv(); err != nil {
		t.Fatal(err)
	}
	cfg.defaults()
	if cfg.Addr != ":9100" || cfg.MaxConns != 8 || cfg.JournalRetention != 48*time.Hour || cfg.LogLevel != "info" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Pipeline.MaxInputs != 5 || cfg.Pipeline.DefaultTargetMB != 1.5 {
		t.Fatalf("pipeline = %+v", cfg.Pipeline)
	}

	t.Setenv("PAGESMITH_AUTH_USER", "ops")
	if err := cfg.applyEnv(); err == nil {
		t.Fatal("expected error for user without password hash")
	}
}

func TestSplitSelector(t *testing.T) {
	tests := []struct{ arg, path, ranges string }{
		{"a.pdf", "a.pdf", ""},
		{"a.pdf@1-3,5", "a.pdf", "1-3,5"},
		{"me@host/a.pdf@2", "me@host/a.pdf", "2"},
		{"@weird.pdf", "@weird.pdf", ""},
	}
	for _, tt := range tests {
		p, r := splitSelector(tt.arg)
		if p != tt.path || r != tt.ranges {
			t.Errorf("splitSelector(%q) = %q, %q", tt.arg, p, r)
		}
	}
}

func TestWriteOutput_Traversal(t *testing.T) {
	dir := t.TempDir()
	if err := writeOutput(dir, "../escape.pdf", []byte("x")); err == nil {
		t.Fatal("expected traversal error")
	}
	if err := writeOutput(dir, "ok.pdf", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ok.pdf")); err != nil {
		t.Fatal(err)
	}
}
