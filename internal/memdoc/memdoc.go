// Package memdoc is a line-based in-memory document format implementing
// assemble.Library. Each page is a label on its own line, which makes page
// order and duplication visible in serialised output. It backs tests and
// dry runs where a real PDF engine is not wanted.
package memdoc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/pagesmith/assemble"
)

const magic = "%MEMDOC"

// ErrNotMemdoc is returned when data lacks the memdoc header.
var ErrNotMemdoc = errors.New("memdoc: not a memdoc document")

// New serialises a document whose pages carry the given labels.
func New(labels ...string) []byte {
	var b bytes.Buffer
	b.WriteString(magic)
	b.WriteByte('\n')
	for _, l := range labels {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// Numbered serialises an n-page document labelled prefix1 … prefixN.
func Numbered(prefix string, n int) []byte {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return New(labels...)
}

// Labels parses data and returns its page labels in order.
func Labels(data []byte) ([]string, error) {
	text := string(data)
	if !strings.HasPrefix(text, magic+"\n") {
		return nil, ErrNotMemdoc
	}
	body := strings.TrimSuffix(strings.TrimPrefix(text, magic+"\n"), "\n")
	if body == "" {
		return []string{}, nil
	}
	return strings.Split(body, "\n"), nil
}

// Library implements assemble.Library.
type Library struct{}

func (Library) Extension() string { return "pdf" }

func (Library) Open(data []byte) (assemble.Document, error) {
	labels, err := Labels(data)
	if err != nil {
		return nil, err
	}
	return document(labels), nil
}

func (Library) NewWriter() assemble.Writer { return &writer{} }

type document []string

func (d document) PageCount() int { return len(d) }

func (d document) Page(i int) (assemble.Page, error) {
	if i < 0 || i >= len(d) {
		return nil, fmt.Errorf("memdoc: page %d of %d", i, len(d))
	}
	return d[i], nil
}

type writer struct{ labels []string }

func (w *writer) AddPage(p assemble.Page) error {
	l, ok := p.(string)
	if !ok {
		return fmt.Errorf("memdoc: foreign page %T", p)
	}
	w.labels = append(w.labels, l)
	return nil
}

func (w *writer) Bytes() ([]byte, error) { return New(w.labels...), nil }
