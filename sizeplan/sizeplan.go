// CLAUDE:SUMMARY Estimates pages-per-output for a size-budgeted split from the document's average bytes per page.
// Package sizeplan plans how to cut a document into outputs that each stay
// under a target size. The estimate uses the document's average bytes per
// page only; real page sizes vary and are never inspected.
package sizeplan

import (
	"errors"
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// ErrInvalidSizeBudget rejects inputs that cannot be planned: a non-positive
// target, an empty document or a negative total size.
var ErrInvalidSizeBudget = errors.New("sizeplan: invalid size budget")

// MiB is the unit of user-facing size targets ("2.0 MB" means 2 MiB).
const MiB = 1024 * 1024

// Plan is the outcome of Compute. It is derived data and must be recomputed
// whenever the document or the target changes.
type Plan struct {
	PagesPerOutput          int     `json:"pages_per_output"`
	OutputCount             int     `json:"output_count"`
	EstimatedBytesPerOutput float64 `json:"estimated_bytes_per_output"`
	AvgBytesPerPage         float64 `json:"avg_bytes_per_page"`

	// Unattainable is set when a single page already exceeds the target on
	// average. The plan then falls back to one page per output.
	Unattainable bool `json:"unattainable"`
}

// MB converts a user-facing megabyte figure to bytes.
func MB(mb float64) float64 { return mb * MiB }

// Compute plans a split of pageCount pages totalling totalSizeBytes so that
// each output is estimated to stay under targetMaxBytesPerOutput.
func Compute(pageCount int, totalSizeBytes, targetMaxBytesPerOutput float64) (Plan, error) {
	switch {
	case pageCount <= 0:
		return Plan{}, fmt.Errorf("%w: page count %d", ErrInvalidSizeBudget, pageCount)
	case !finite(targetMaxBytesPerOutput) || targetMaxBytesPerOutput <= 0:
		return Plan{}, fmt.Errorf("%w: target %v bytes", ErrInvalidSizeBudget, targetMaxBytesPerOutput)
	case !finite(totalSizeBytes) || totalSizeBytes < 0:
		return Plan{}, fmt.Errorf("%w: total size %v bytes", ErrInvalidSizeBudget, totalSizeBytes)
	}

	avg := totalSizeBytes / float64(pageCount)
	p := Plan{AvgBytesPerPage: avg}

	switch {
	case avg > targetMaxBytesPerOutput:
		p.PagesPerOutput = 1
		p.Unattainable = true
	case avg > 0:
		p.PagesPerOutput = pagesFor(targetMaxBytesPerOutput / avg)
	default:
		p.PagesPerOutput = pageCount
	}
	p.OutputCount = outputs(pageCount, p.PagesPerOutput)
	p.EstimatedBytesPerOutput = avg * float64(p.PagesPerOutput)
	return p, nil
}

// Slices partitions [0, pageCount) into contiguous half-open ranges of
// PagesPerOutput pages. The last range may be shorter.
func (p Plan) Slices(pageCount int) [][2]int {
	if p.PagesPerOutput <= 0 || pageCount <= 0 {
		return nil
	}
	out := make([][2]int, 0, outputs(pageCount, p.PagesPerOutput))
	for start := 0; start < pageCount; {
		end := start + min(p.PagesPerOutput, pageCount-start)
		out = append(out, [2]int{start, end})
		start = end
	}
	return out
}

// Summary renders the plan for a person deciding whether to run the split.
func (p Plan) Summary() string {
	s := fmt.Sprintf("up to %d page(s) per file, about %s each, %d file(s)",
		p.PagesPerOutput, humanize.IBytes(uint64(math.Round(p.EstimatedBytesPerOutput))), p.OutputCount)
	if p.Unattainable {
		s += "; pages average more than the target size, splitting one page per file"
	}
	return s + " (estimate: page sizes vary)"
}

// pagesFor saturates at math.MaxInt; int() of an out-of-range float is
// undefined and wraps on amd64.
func pagesFor(q float64) int {
	if q >= math.MaxInt {
		return math.MaxInt
	}
	return max(1, int(math.Floor(q)))
}

// outputs is ceil(pages/per) without the overflow of pages+per-1.
func outputs(pages, per int) int {
	return 1 + (pages-1)/per
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
