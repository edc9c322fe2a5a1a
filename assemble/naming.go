package assemble

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Fixed names handed to the delivery layer.
const (
	MergedName       = "merged_document"
	RangeArchiveName = "split_pages.zip"
	SizeArchiveName  = "split_by_size.zip"
)

// Artifact is one finished output document, held in memory until the
// delivery layer takes it.
type Artifact struct {
	Name  string `json:"name"`
	Ext   string `json:"ext"`
	Pages int    `json:"pages"`
	Data  []byte `json:"-"`
}

// FileName is Name plus the library's extension.
func (a Artifact) FileName() string {
	if a.Ext == "" {
		return a.Name
	}
	return a.Name + "." + a.Ext
}

// PartName names the n-th (1-based) output of a range split.
func PartName(base string, n int) string { return fmt.Sprintf("%s_part%d", base, n) }

// SizePartName names the n-th (1-based) output of a size split.
func SizePartName(base string, n int) string { return fmt.Sprintf("%s_size_part%d", base, n) }

// BaseName strips directories and the last extension from an upload name,
// NFC-normalises it and removes control characters, so it is safe as an
// archive entry prefix.
func BaseName(uploadName string) string {
	name := strings.ReplaceAll(uploadName, `\`, "/")
	name = path.Base(name)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, norm.NFC.String(name))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "document"
	}
	return name
}
