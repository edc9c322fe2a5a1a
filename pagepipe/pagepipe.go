// CLAUDE:SUMMARY Merge/split pipeline — opens uploads, parses ranges, plans sizes, assembles and journals each operation.
// Package pagepipe runs the user-facing merge and split operations.
//
// It applies the request-level policies around the page engine: unreadable
// merge inputs are skipped and reported, empty selections become warnings,
// a split that yields no group is refused before any assembly, and every
// operation is journaled when a journal is attached.
//
// Usage:
//
//	pipe := pagepipe.New(pagepipe.Config{})
//	res, err := pipe.SplitRanges(ctx, pagepipe.Input{Name: "a.pdf", Data: data}, "1-5, 6-10")
//	os.WriteFile(res.ArchiveName, res.Archive, 0o644)
package pagepipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hazyhaar/pagesmith/assemble"
	"github.com/hazyhaar/pagesmith/journal"
	"github.com/hazyhaar/pagesmith/kit"
	"github.com/hazyhaar/pagesmith/pagerange"
	"github.com/hazyhaar/pagesmith/pdfdoc"
	"github.com/hazyhaar/pagesmith/sizeplan"
)

// Pipeline is the merge/split engine.
type Pipeline struct {
	cfg     Config
	logger  *slog.Logger
	lib     assemble.Library
	asm     *assemble.Assembler
	journal *journal.Journal
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLibrary replaces the pdfcpu document library.
func WithLibrary(lib assemble.Library) Option {
	return func(p *Pipeline) { p.lib = lib }
}

// WithJournal records every operation in j.
func WithJournal(j *journal.Journal) Option {
	return func(p *Pipeline) { p.journal = j }
}

// New creates a Pipeline with the given configuration.
func New(cfg Config, opts ...Option) *Pipeline {
	cfg.defaults()
	p := &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
	}
	for _, o := range opts {
		o(p)
	}
	if p.lib == nil {
		p.lib = pdfdoc.New()
	}
	p.asm = assemble.New(p.lib, p.logger)
	return p
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Detect checks that name looks like a document the library reads. Names
// without an extension are accepted (stdin, API clients).
func (p *Pipeline) Detect(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || ext == "."+p.lib.Extension() {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

func (p *Pipeline) open(in Input) (*assemble.Source, error) {
	if int64(len(in.Data)) > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrTooLarge, in.Name, len(in.Data), p.cfg.MaxFileSize)
	}
	if err := p.Detect(in.Name); err != nil {
		return nil, err
	}
	return assemble.OpenSource(p.lib, in.Name, in.Data)
}

func (p *Pipeline) openMerge(in MergeInput) (*assemble.Source, error) {
	if in.Err != nil {
		return nil, in.Err
	}
	return p.open(in.Input)
}

func info(src *assemble.Source) SourceInfo {
	return SourceInfo{
		Name:      src.Name,
		Pages:     src.Pages,
		Size:      src.Size,
		SizeHuman: humanize.IBytes(uint64(src.Size)),
	}
}

// Inspect opens one document and reports its page count and size.
func (p *Pipeline) Inspect(ctx context.Context, in Input) (*SourceInfo, error) {
	start := time.Now()
	src, err := p.open(in)
	if err != nil {
		p.record(ctx, &journal.Entry{Op: "inspect", Inputs: []string{in.Name}}, start, err)
		return nil, err
	}
	si := info(src)
	p.record(ctx, &journal.Entry{Op: "inspect", Inputs: []string{in.Name}, Pages: si.Pages, Bytes: si.Size}, start, nil)
	return &si, nil
}

// Merge concatenates the selected pages of every input, in input order.
// Unreadable, oversized or non-PDF inputs are skipped and listed in
// Skipped; the merge fails only when no input could be opened.
func (p *Pipeline) Merge(ctx context.Context, inputs []MergeInput) (*MergeResult, error) {
	start := time.Now()
	names := make([]string, len(inputs))
	for i, in := range inputs {
		names[i] = in.Name
	}
	entry := &journal.Entry{Op: "merge", Inputs: names}

	res, err := p.merge(ctx, inputs)
	if err != nil {
		p.record(ctx, entry, start, err)
		return nil, err
	}
	entry.Outputs = 1
	entry.Pages = res.Artifact.Pages
	entry.Bytes = int64(len(res.Artifact.Data))
	entry.Warnings = len(res.Warnings) + len(res.Skipped)
	p.record(ctx, entry, start, nil)
	return res, nil
}

func (p *Pipeline) merge(ctx context.Context, inputs []MergeInput) (*MergeResult, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}
	if len(inputs) > p.cfg.MaxInputs {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrTooManyInputs, len(inputs), p.cfg.MaxInputs)
	}

	res := &MergeResult{}
	var sels []assemble.Selection
	for _, in := range inputs {
		src, err := p.openMerge(in)
		if err != nil {
			if !skippable(err) {
				return nil, err
			}
			p.logger.Warn("pagepipe: merge input skipped", "name", in.Name, "error", err)
			res.Skipped = append(res.Skipped, Skipped{Name: in.Name, Reason: err.Error()})
			continue
		}
		pages, diag := pagerange.ParseDiagnose(in.Ranges, src.Pages)
		for _, w := range diag.Warnings() {
			res.Warnings = append(res.Warnings, src.Name+": "+w)
		}
		if pages.Empty() {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", src.Name, assemble.ErrEmptySelection))
		}
		res.Sources = append(res.Sources, info(src))
		sels = append(sels, assemble.Selection{Source: src, Pages: pages})
	}
	if len(sels) == 0 {
		return nil, fmt.Errorf("%w: none of %d file(s) could be read", ErrNoInputs, len(inputs))
	}

	art, err := p.asm.MergeSelections(ctx, sels)
	if err != nil {
		return nil, err
	}
	res.Artifact = art
	if art.Pages == 0 {
		res.Empty = true
		res.Warnings = append(res.Warnings, assemble.ErrEmptySelection.Error())
	}
	p.logger.Info("pagepipe: merged", "sources", len(sels), "skipped", len(res.Skipped), "pages", art.Pages, "bytes", len(art.Data))
	return res, nil
}

func skippable(err error) bool {
	return errors.Is(err, assemble.ErrUnreadableDocument) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrTooLarge)
}

// SplitRanges cuts one document into one output per comma-separated range
// of expr ("1-5, 6-10, 11") and packs them into a zip archive. A blank
// expression or one yielding no group fails with assemble.ErrNoGroups.
func (p *Pipeline) SplitRanges(ctx context.Context, in Input, expr string) (*SplitResult, error) {
	start := time.Now()
	entry := &journal.Entry{Op: "split_ranges", Inputs: []string{in.Name}, Params: expr}
	res, err := p.splitRanges(ctx, in, expr)
	p.recordSplit(ctx, entry, start, res, err)
	return res, err
}

func (p *Pipeline) splitRanges(ctx context.Context, in Input, expr string) (*SplitResult, error) {
	src, err := p.open(in)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty range expression", assemble.ErrNoGroups)
	}
	groups, diag := pagerange.ParseGroupsDiagnose(expr, src.Pages)
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: %q on %d page(s)", assemble.ErrNoGroups, expr, src.Pages)
	}

	arts, err := p.asm.SplitByGroups(ctx, src, groups)
	if err != nil {
		return nil, err
	}
	return p.packSplit(src, arts, assemble.RangeArchiveName, nil, diag.Warnings())
}

// PlanSize estimates a size split of one document without assembling it.
func (p *Pipeline) PlanSize(ctx context.Context, in Input, targetMB float64) (*PlanResult, error) {
	start := time.Now()
	entry := &journal.Entry{Op: "plan", Inputs: []string{in.Name}, Params: fmt.Sprintf("%gMB", targetMB)}

	src, err := p.open(in)
	if err != nil {
		p.record(ctx, entry, start, err)
		return nil, err
	}
	plan, err := sizeplan.Compute(src.Pages, float64(src.Size), sizeplan.MB(targetMB))
	if err != nil {
		p.record(ctx, entry, start, err)
		return nil, err
	}
	entry.Outputs = plan.OutputCount
	entry.Pages = src.Pages
	p.record(ctx, entry, start, nil)
	return &PlanResult{Source: info(src), TargetMB: targetMB, Plan: plan, Summary: plan.Summary()}, nil
}

// SplitSize cuts one document into contiguous outputs estimated to stay
// under targetMB each, packed into a zip archive.
func (p *Pipeline) SplitSize(ctx context.Context, in Input, targetMB float64) (*SplitResult, error) {
	start := time.Now()
	entry := &journal.Entry{Op: "split_size", Inputs: []string{in.Name}, Params: fmt.Sprintf("%gMB", targetMB)}
	res, err := p.splitSize(ctx, in, targetMB)
	p.recordSplit(ctx, entry, start, res, err)
	return res, err
}

func (p *Pipeline) splitSize(ctx context.Context, in Input, targetMB float64) (*SplitResult, error) {
	src, err := p.open(in)
	if err != nil {
		return nil, err
	}
	plan, err := sizeplan.Compute(src.Pages, float64(src.Size), sizeplan.MB(targetMB))
	if err != nil {
		return nil, err
	}
	var warnings []string
	if plan.Unattainable {
		warnings = append(warnings, fmt.Sprintf("pages average %s, above the %gMB target: splitting one page per file",
			humanize.IBytes(uint64(plan.AvgBytesPerPage)), targetMB))
	}

	arts, err := p.asm.SplitBySizeBudget(ctx, src, plan)
	if err != nil {
		return nil, err
	}
	return p.packSplit(src, arts, assemble.SizeArchiveName, &plan, warnings)
}

func (p *Pipeline) packSplit(src *assemble.Source, arts []assemble.Artifact, archiveName string, plan *sizeplan.Plan, warnings []string) (*SplitResult, error) {
	archive, err := assemble.Archive(arts)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", archiveName, err)
	}
	p.logger.Info("pagepipe: split", "source", src.Name, "parts", len(arts), "archive", archiveName, "bytes", len(archive))
	return &SplitResult{
		Source:      info(src),
		Artifacts:   arts,
		ArchiveName: archiveName,
		Archive:     archive,
		Plan:        plan,
		Warnings:    warnings,
	}, nil
}

func (p *Pipeline) recordSplit(ctx context.Context, e *journal.Entry, start time.Time, res *SplitResult, err error) {
	if res != nil {
		e.Outputs = len(res.Artifacts)
		e.Pages = res.Source.Pages
		e.Bytes = int64(len(res.Archive))
		e.Warnings = len(res.Warnings)
	}
	p.record(ctx, e, start, err)
}

func (p *Pipeline) record(ctx context.Context, e *journal.Entry, start time.Time, err error) {
	e.DurationMs = time.Since(start).Milliseconds()
	e.RequestID = kit.GetRequestID(ctx)
	e.Transport = kit.GetTransport(ctx)
	e.Status = journal.StatusOK
	if err != nil {
		e.Status = journal.StatusError
		e.Error = err.Error()
		p.logger.Debug("pagepipe: operation failed", "op", e.Op, "error", err)
	}
	if p.journal != nil {
		p.journal.Record(ctx, e)
	}
}

// Recent returns the latest journaled operations, or nil without a journal.
func (p *Pipeline) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	if p.journal == nil {
		return nil, nil
	}
	return p.journal.Recent(ctx, limit)
}
