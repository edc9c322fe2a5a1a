// CLAUDE:SUMMARY Document-library collaborator interfaces (open, page access, writer) consumed by the assembler.
package assemble

// Page is an opaque page handle produced by a Document and consumed by a
// Writer of the same Library.
type Page any

// Document is an opened, read-only paginated document.
type Document interface {
	PageCount() int
	// Page returns the page at zero-based index.
	Page(index int) (Page, error)
}

// Writer accumulates pages into a new document.
type Writer interface {
	AddPage(p Page) error
	// Bytes serialises the pages added so far. A writer with no pages
	// serialises to a valid empty document.
	Bytes() ([]byte, error)
}

// Library reads and writes one paginated format.
type Library interface {
	Open(data []byte) (Document, error)
	NewWriter() Writer
	// Extension is the file extension of serialised documents, without dot.
	Extension() string
}
