// CLAUDE:SUMMARY pdfcpu-backed document library — opens PDFs, references pages, writes extracted/merged page sets.
// CLAUDE:EXPORTS Library, New
// Package pdfdoc implements assemble.Library on top of pdfcpu.
//
// Pages are references into an opened source context. A writer batches
// consecutive pages from the same source into one pdfcpu.ExtractPages call
// and joins batches from different sources with api.MergeRaw.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hazyhaar/pagesmith/assemble"
)

// ErrForeignPage is returned when a writer receives a page it did not create.
var ErrForeignPage = errors.New("pdfdoc: page does not come from this library")

var disableConfigDir sync.Once

// Library is the pdfcpu document library.
type Library struct{}

// New returns a Library. pdfcpu's on-disk configuration directory is
// disabled: every configuration is built in memory.
func New() *Library {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Library{}
}

func newConf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Extension implements assemble.Library.
func (l *Library) Extension() string { return "pdf" }

// Open reads and validates a PDF. Encrypted and corrupt files fail here.
func (l *Library) Open(data []byte) (assemble.Document, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), newConf())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return &document{ctx: ctx}, nil
}

// NewWriter implements assemble.Library.
func (l *Library) NewWriter() assemble.Writer { return &writer{} }

type document struct {
	ctx *model.Context
}

func (d *document) PageCount() int { return d.ctx.PageCount }

func (d *document) Page(index int) (assemble.Page, error) {
	if index < 0 || index >= d.ctx.PageCount {
		return nil, fmt.Errorf("pdfdoc: page index %d of %d", index, d.ctx.PageCount)
	}
	return page{ctx: d.ctx, nr: index + 1}, nil
}

// page references a 1-based page number inside a source context.
type page struct {
	ctx *model.Context
	nr  int
}

type run struct {
	ctx *model.Context
	nrs []int
}

type writer struct {
	runs  []run
	count int
}

func (w *writer) AddPage(p assemble.Page) error {
	pg, ok := p.(page)
	if !ok {
		return ErrForeignPage
	}
	if n := len(w.runs); n > 0 && w.runs[n-1].ctx == pg.ctx {
		w.runs[n-1].nrs = append(w.runs[n-1].nrs, pg.nr)
	} else {
		w.runs = append(w.runs, run{ctx: pg.ctx, nrs: []int{pg.nr}})
	}
	w.count++
	return nil
}

func (w *writer) Bytes() ([]byte, error) {
	if w.count == 0 {
		return emptyDocument(), nil
	}

	parts := make([][]byte, 0, len(w.runs))
	for _, r := range w.runs {
		// Page cache on: repeated page numbers share one page tree entry.
		dest, err := pdfcpu.ExtractPages(r.ctx, r.nrs, true)
		if err != nil {
			return nil, fmt.Errorf("pdfcpu extract pages %v: %w", r.nrs, err)
		}
		var buf bytes.Buffer
		if err := api.WriteContext(dest, &buf); err != nil {
			return nil, fmt.Errorf("pdfcpu write: %w", err)
		}
		parts = append(parts, buf.Bytes())
	}
	if len(parts) == 1 {
		return parts[0], nil
	}

	rsc := make([]io.ReadSeeker, len(parts))
	for i, p := range parts {
		rsc[i] = bytes.NewReader(p)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(rsc, &out, false, newConf()); err != nil {
		return nil, fmt.Errorf("pdfcpu merge: %w", err)
	}
	return out.Bytes(), nil
}

// emptyDocument is a valid PDF with an empty page tree.
func emptyDocument() []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	off1 := b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := b.Len()
	b.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 3\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n", off1, off2)
	fmt.Fprintf(&b, "trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return b.Bytes()
}
