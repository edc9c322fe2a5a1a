package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/netutil"

	"github.com/hazyhaar/pagesmith/assemble"
	"github.com/hazyhaar/pagesmith/horosafe"
	"github.com/hazyhaar/pagesmith/journal"
	"github.com/hazyhaar/pagesmith/pagepipe"
	"github.com/hazyhaar/pagesmith/shield"
	"github.com/hazyhaar/pagesmith/sizeplan"
)

const version = "0.1.0"

// multipartMemory is how much of a multipart form stays in memory before
// net/http spools file parts to disk.
const multipartMemory = 32 << 20

func cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", env("PAGESMITH_CONFIG", ""), "path to pagesmith.yaml")
	addr := fs.String("addr", "", "listen address (overrides config)")
	withMCP := fs.Bool("mcp", false, "also serve MCP tools on stdin/stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := &serverConfig{}
	if *configPath != "" {
		var err error
		if cfg, err = loadServerConfig(*configPath); err != nil {
			return err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return err
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	cfg.defaults()
	logger := newLogger(cfg.LogLevel)

	if cfg.AuthPasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.AuthPasswordHash)); err != nil {
			return fmt.Errorf("auth_password_hash: %w", err)
		}
	}

	var opts []pagepipe.Option
	if cfg.JournalDB != "" {
		j, err := journal.Open(cfg.JournalDB, journal.WithLogger(logger))
		if err != nil {
			return err
		}
		defer j.Close()
		opts = append(opts, pagepipe.WithJournal(j))
		go pruneJournal(ctx, j, cfg.JournalRetention, logger)
	}
	pcfg := cfg.Pipeline
	pcfg.Logger = logger
	pipe := pagepipe.New(pcfg, opts...)

	if *withMCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "pagesmith", Version: version}, nil)
		pipe.RegisterMCP(mcpSrv)
		go func() {
			logger.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("MCP stdio", "error", err)
			}
		}()
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	ln = netutil.LimitListener(ln, cfg.MaxConns)

	srv := &http.Server{
		Handler:           newRouter(&server{pipe: pipe}, cfg),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", ln.Addr().String(), "max_conns", cfg.MaxConns,
			"auth", cfg.AuthUser != "", "journal", cfg.JournalDB != "")
		errc <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func pruneJournal(ctx context.Context, j *journal.Journal, retention time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := j.Cleanup(ctx, retention)
		if err != nil {
			logger.Warn("journal cleanup", "error", err)
		} else if n > 0 {
			logger.Info("journal cleanup", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type server struct {
	pipe *pagepipe.Pipeline
}

func newRouter(s *server, cfg *serverConfig) http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(maxBody(s.pipe.Config())) {
		r.Use(mw)
	}
	if cfg.AuthUser != "" {
		r.Use(shield.BasicAuth(cfg.AuthUser, []byte(cfg.AuthPasswordHash), "/health"))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok", "version": version})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/inspect", s.handleInspect)
		r.Post("/merge", s.handleMerge)
		r.Post("/split/ranges", s.handleSplitRanges)
		r.Post("/split/size", s.handleSplitSize)
		r.Get("/plan", s.handlePlan)
		r.Get("/parse", s.handleParse)
		r.Get("/operations", s.handleOperations)
	})
	return r
}

// --- Handlers ---

func (s *server) handleInspect(w http.ResponseWriter, r *http.Request) {
	in, err := s.formFile(r, "file")
	if err != nil {
		fail(w, r, err)
		return
	}
	si, err := s.pipe.Inspect(r.Context(), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, 200, si)
}

// handleMerge takes repeated "files" parts and optional "ranges" fields
// matched to them by position.
func (s *server) handleMerge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		fail(w, r, err)
		return
	}
	files := r.MultipartForm.File["files"]
	ranges := r.MultipartForm.Value["ranges"]
	inputs := make([]pagepipe.MergeInput, 0, len(files))
	for i, fh := range files {
		in, err := s.readUpload(fh)
		mi := pagepipe.MergeInput{Input: in}
		switch {
		case errors.Is(err, horosafe.ErrTooLarge):
			mi = oversized(fh.Filename, err)
		case err != nil:
			fail(w, r, err)
			return
		}
		if i < len(ranges) {
			mi.Ranges = ranges[i]
		}
		inputs = append(inputs, mi)
	}

	res, err := s.pipe.Merge(r.Context(), inputs)
	if err != nil {
		fail(w, r, err)
		return
	}
	h := w.Header()
	h.Set("X-Pagesmith-Pages", strconv.Itoa(res.Artifact.Pages))
	h.Set("X-Pagesmith-Sources", strconv.Itoa(len(res.Sources)))
	h.Set("X-Pagesmith-Skipped", strconv.Itoa(len(res.Skipped)))
	h.Set("X-Pagesmith-Warnings", strconv.Itoa(len(res.Warnings)))
	if res.Empty {
		h.Set("X-Pagesmith-Empty", "true")
	}
	if wantJSON(r) {
		writeJSON(w, 200, res)
		return
	}
	writeFile(w, res.Artifact.FileName(), "application/pdf", res.Artifact.Data)
}

func (s *server) handleSplitRanges(w http.ResponseWriter, r *http.Request) {
	in, err := s.formFile(r, "file")
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := s.pipe.SplitRanges(r.Context(), in, r.FormValue("ranges"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeSplit(w, r, res)
}

func (s *server) handleSplitSize(w http.ResponseWriter, r *http.Request) {
	in, err := s.formFile(r, "file")
	if err != nil {
		fail(w, r, err)
		return
	}
	target, err := formFloat(r, "target_mb", s.pipe.Config().DefaultTargetMB)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := s.pipe.SplitSize(r.Context(), in, target)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("X-Pagesmith-Pages-Per-File", strconv.Itoa(res.Plan.PagesPerOutput))
	if res.Plan.Unattainable {
		w.Header().Set("X-Pagesmith-Unattainable", "true")
	}
	writeSplit(w, r, res)
}

// handlePlan estimates a size split from figures alone:
// GET /api/plan?pages=120&bytes=48000000&target_mb=2
func (s *server) handlePlan(w http.ResponseWriter, r *http.Request) {
	pages, err := strconv.Atoi(r.URL.Query().Get("pages"))
	if err != nil {
		writeError(w, 400, fmt.Errorf("pages: %w", err))
		return
	}
	total, err := strconv.ParseFloat(r.URL.Query().Get("bytes"), 64)
	if err != nil {
		writeError(w, 400, fmt.Errorf("bytes: %w", err))
		return
	}
	target, err := formFloat(r, "target_mb", s.pipe.Config().DefaultTargetMB)
	if err != nil {
		fail(w, r, err)
		return
	}
	plan, err := sizeplan.Compute(pages, total, sizeplan.MB(target))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{"plan": plan, "summary": plan.Summary(), "target_mb": target})
}

// handleParse previews a range expression: GET /api/parse?expr=1-3&pages=10[&mode=split]
func (s *server) handleParse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pages, err := strconv.Atoi(q.Get("pages"))
	if err != nil {
		writeError(w, 400, fmt.Errorf("pages must be an integer"))
		return
	}
	prev, err := pagepipe.Preview(q.Get("expr"), pages, q.Get("mode") == "split")
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, 200, prev)
}

func (s *server) handleOperations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	entries, err := s.pipe.Recent(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, 200, entries)
}

// --- Uploads ---

func (s *server) formFile(r *http.Request, field string) (pagepipe.Input, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return pagepipe.Input{}, err
	}
	fhs := r.MultipartForm.File[field]
	if len(fhs) == 0 {
		return pagepipe.Input{}, fmt.Errorf("%w: missing %q file part", errBadRequest, field)
	}
	return s.readUpload(fhs[0])
}

// readUpload reads one part one byte past the pipeline limit so the
// pipeline itself reports ErrTooLarge.
func (s *server) readUpload(fh *multipart.FileHeader) (pagepipe.Input, error) {
	f, err := fh.Open()
	if err != nil {
		return pagepipe.Input{}, err
	}
	defer f.Close()
	data, err := horosafe.LimitedReadAll(f, s.pipe.Config().MaxFileSize+1)
	if err != nil {
		return pagepipe.Input{}, err
	}
	return pagepipe.Input{Name: fh.Filename, Data: data}, nil
}

// oversized turns a read that hit the size cap into a merge input the
// pipeline reports as skipped, so one large file does not sink the batch.
func oversized(name string, err error) pagepipe.MergeInput {
	return pagepipe.MergeInput{
		Input: pagepipe.Input{Name: name},
		Err:   fmt.Errorf("%w: %s: %v", pagepipe.ErrTooLarge, name, err),
	}
}

// --- Responses ---

var errBadRequest = errors.New("bad request")

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe),
		errors.Is(err, pagepipe.ErrTooLarge),
		errors.Is(err, horosafe.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pagepipe.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, assemble.ErrUnreadableDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, assemble.ErrNoGroups),
		errors.Is(err, sizeplan.ErrInvalidSizeBudget),
		errors.Is(err, pagepipe.ErrNoInputs),
		errors.Is(err, pagepipe.ErrTooManyInputs),
		errors.Is(err, pagepipe.ErrInvalidPageCount),
		errors.Is(err, http.ErrNotMultipart),
		errors.Is(err, http.ErrMissingBoundary),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	logger := shield.GetLogger(r.Context())
	if code >= 500 {
		logger.Error("request failed", "error", err)
	} else {
		logger.Info("request rejected", "status", code, "error", err)
	}
	writeError(w, code, err)
}

func writeSplit(w http.ResponseWriter, r *http.Request, res *pagepipe.SplitResult) {
	w.Header().Set("X-Pagesmith-Parts", strconv.Itoa(len(res.Artifacts)))
	w.Header().Set("X-Pagesmith-Warnings", strconv.Itoa(len(res.Warnings)))
	if wantJSON(r) {
		writeJSON(w, 200, res)
		return
	}
	writeFile(w, res.ArchiveName, "application/zip", res.Archive)
}

// wantJSON selects the report instead of the document bytes (?format=json).
func wantJSON(r *http.Request) bool {
	return r.URL.Query().Get("format") == "json"
}

func writeFile(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(200)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func formFloat(r *http.Request, key string, def float64) (float64, error) {
	s := r.FormValue(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errBadRequest, key, err)
	}
	return v, nil
}
