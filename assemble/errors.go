package assemble

import "errors"

var (
	// ErrUnreadableDocument wraps failures to open source bytes (corrupt or encrypted).
	ErrUnreadableDocument = errors.New("assemble: unreadable document")

	// ErrEmptySelection reports that a selection or every selection selected no page.
	ErrEmptySelection = errors.New("assemble: no pages selected")

	// ErrNoGroups reports that a split request produced no group to assemble.
	ErrNoGroups = errors.New("assemble: no valid range specified")

	// ErrPageOutOfRange reports a page index outside the source document.
	ErrPageOutOfRange = errors.New("assemble: page index out of range")
)
