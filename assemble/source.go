package assemble

import (
	"fmt"

	"github.com/hazyhaar/pagesmith/pagerange"
)

// Source is an opened input document with its page count and byte size.
// It is owned by one request and never mutated.
type Source struct {
	Name  string // upload file name, as given
	Doc   Document
	Pages int
	Size  int64
}

// OpenSource opens data through lib. Open failures are wrapped in
// ErrUnreadableDocument.
func OpenSource(lib Library, name string, data []byte) (*Source, error) {
	doc, err := lib.Open(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, name, err)
	}
	return &Source{
		Name:  name,
		Doc:   doc,
		Pages: doc.PageCount(),
		Size:  int64(len(data)),
	}, nil
}

// BaseName is the artifact name prefix derived from the upload name.
func (s *Source) BaseName() string { return BaseName(s.Name) }

// Selection pairs a source with the pages to take from it.
type Selection struct {
	Source *Source
	Pages  pagerange.PageIndexSet
}
