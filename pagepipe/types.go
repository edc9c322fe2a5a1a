// CLAUDE:SUMMARY Input, result and error types for pagepipe operations.
package pagepipe

import (
	"errors"

	"github.com/hazyhaar/pagesmith/assemble"
	"github.com/hazyhaar/pagesmith/sizeplan"
)

var (
	// ErrTooLarge rejects an input above Config.MaxFileSize.
	ErrTooLarge = errors.New("pagepipe: file too large")

	// ErrUnsupportedFormat rejects a file whose extension is not a PDF.
	ErrUnsupportedFormat = errors.New("pagepipe: unsupported format")

	// ErrNoInputs reports a merge with nothing readable to merge.
	ErrNoInputs = errors.New("pagepipe: no input documents")

	// ErrTooManyInputs rejects a merge above Config.MaxInputs.
	ErrTooManyInputs = errors.New("pagepipe: too many input documents")

	// ErrInvalidPageCount rejects a preview page count outside [0, MaxPreviewPages].
	ErrInvalidPageCount = errors.New("pagepipe: invalid page count")
)

// MaxPreviewPages bounds the page count a caller may declare for Preview.
// Selecting every page costs one entry per page.
const MaxPreviewPages = 100_000

// Input is one uploaded document.
type Input struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// MergeInput is a document plus its page range expression ("" = all pages).
// Err marks an input the caller already failed to read; Merge reports it as
// skipped when the error is one it would skip itself.
type MergeInput struct {
	Input
	Ranges string `json:"ranges,omitempty"`
	Err    error  `json:"-"`
}

// SourceInfo describes an opened document.
type SourceInfo struct {
	Name      string `json:"name"`
	Pages     int    `json:"pages"`
	Size      int64  `json:"size"`
	SizeHuman string `json:"size_human"`
}

// Skipped is a merge input that could not be used.
type Skipped struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// MergeResult is the outcome of Merge.
type MergeResult struct {
	Artifact assemble.Artifact `json:"artifact"`
	Sources  []SourceInfo      `json:"sources"`
	Skipped  []Skipped         `json:"skipped,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	// Empty is set when no page was selected at all; Artifact is then a
	// valid document without pages.
	Empty bool `json:"empty"`
}

// SplitResult is the outcome of SplitRanges and SplitSize.
type SplitResult struct {
	Source      SourceInfo          `json:"source"`
	Artifacts   []assemble.Artifact `json:"artifacts"`
	ArchiveName string              `json:"archive_name"`
	Archive     []byte              `json:"-"`
	Plan        *sizeplan.Plan      `json:"plan,omitempty"`
	Warnings    []string            `json:"warnings,omitempty"`
}

// PlanResult is the outcome of PlanSize.
type PlanResult struct {
	Source   SourceInfo    `json:"source"`
	TargetMB float64       `json:"target_mb"`
	Plan     sizeplan.Plan `json:"plan"`
	Summary  string        `json:"summary"`
}
