// CLAUDE:SUMMARY ChunkAssembler — merges page selections and splits a source by range groups or size plan.
// CLAUDE:DEPENDS pagerange, sizeplan
// Package assemble drives a document Library to build output documents from
// page selections: one merged document from many sources, or several
// documents cut from one source.
//
// The assembler holds no state between calls and never writes to disk;
// every artifact lives in memory until the caller hands it on.
package assemble

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/pagesmith/pagerange"
	"github.com/hazyhaar/pagesmith/sizeplan"
)

// Assembler builds artifacts through a Library.
type Assembler struct {
	lib    Library
	logger *slog.Logger
}

// New creates an Assembler. A nil logger uses slog.Default().
func New(lib Library, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{lib: lib, logger: logger}
}

type pageRef struct {
	src   *Source
	index int
}

// MergeSelections appends each selection's pages, source by source in input
// order, into one document named MergedName. Empty selections contribute
// nothing; if all are empty the result is a valid empty document.
func (a *Assembler) MergeSelections(ctx context.Context, sels []Selection) (Artifact, error) {
	var refs []pageRef
	for _, s := range sels {
		for _, idx := range s.Pages {
			refs = append(refs, pageRef{src: s.Source, index: idx})
		}
	}
	return a.build(ctx, MergedName, refs)
}

// SplitByGroups produces one artifact per group, named PartName(base, n).
// Pages keep the group's order, duplicates included.
func (a *Assembler) SplitByGroups(ctx context.Context, src *Source, groups []pagerange.PageGroup) ([]Artifact, error) {
	if len(groups) == 0 {
		return nil, ErrNoGroups
	}
	base := src.BaseName()
	out := make([]Artifact, 0, len(groups))
	for n, g := range groups {
		refs := make([]pageRef, len(g))
		for i, idx := range g {
			refs[i] = pageRef{src: src, index: idx}
		}
		art, err := a.build(ctx, PartName(base, n+1), refs)
		if err != nil {
			return nil, err
		}
		out = append(out, art)
	}
	return out, nil
}

// SplitBySizeBudget cuts the source into contiguous runs of
// plan.PagesPerOutput pages, named SizePartName(base, n).
func (a *Assembler) SplitBySizeBudget(ctx context.Context, src *Source, plan sizeplan.Plan) ([]Artifact, error) {
	if plan.PagesPerOutput < 1 || src.Pages < 1 {
		return nil, fmt.Errorf("%w: %d pages at %d per output", sizeplan.ErrInvalidSizeBudget, src.Pages, plan.PagesPerOutput)
	}
	base := src.BaseName()
	slices := plan.Slices(src.Pages)
	out := make([]Artifact, 0, len(slices))
	for n, sl := range slices {
		refs := make([]pageRef, 0, sl[1]-sl[0])
		for idx := sl[0]; idx < sl[1]; idx++ {
			refs = append(refs, pageRef{src: src, index: idx})
		}
		art, err := a.build(ctx, SizePartName(base, n+1), refs)
		if err != nil {
			return nil, err
		}
		out = append(out, art)
	}
	return out, nil
}

func (a *Assembler) build(ctx context.Context, name string, refs []pageRef) (Artifact, error) {
	w := a.lib.NewWriter()
	for _, r := range refs {
		if err := ctx.Err(); err != nil {
			return Artifact{}, err
		}
		if r.index < 0 || r.index >= r.src.Pages {
			return Artifact{}, fmt.Errorf("%w: %s page index %d (document has %d pages)",
				ErrPageOutOfRange, r.src.Name, r.index, r.src.Pages)
		}
		p, err := r.src.Doc.Page(r.index)
		if err != nil {
			return Artifact{}, fmt.Errorf("%s: page %d: %w", r.src.Name, r.index+1, err)
		}
		if err := w.AddPage(p); err != nil {
			return Artifact{}, fmt.Errorf("%s: add page %d: %w", name, r.index+1, err)
		}
	}
	data, err := w.Bytes()
	if err != nil {
		return Artifact{}, fmt.Errorf("%s: serialise: %w", name, err)
	}
	a.logger.Debug("assemble: artifact built", "name", name, "pages", len(refs), "bytes", len(data))
	return Artifact{Name: name, Ext: a.lib.Extension(), Pages: len(refs), Data: data}, nil
}
