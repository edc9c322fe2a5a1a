package assemble_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/hazyhaar/pagesmith/assemble"
	"github.com/hazyhaar/pagesmith/internal/memdoc"
	"github.com/hazyhaar/pagesmith/pagerange"
	"github.com/hazyhaar/pagesmith/sizeplan"
	"github.com/klauspost/compress/zip"
)

func open(t *testing.T, name string, data []byte) *assemble.Source {
	t.Helper()
	src, err := assemble.OpenSource(memdoc.Library{}, name, data)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	return src
}

func labels(t *testing.T, a assemble.Artifact) []string {
	t.Helper()
	l, err := memdoc.Labels(a.Data)
	if err != nil {
		t.Fatalf("artifact %s: %v", a.Name, err)
	}
	return l
}

func TestOpenSource(t *testing.T) {
	src := open(t, "report.pdf", memdoc.Numbered("p", 4))
	if src.Pages != 4 || src.Size != int64(len(memdoc.Numbered("p", 4))) {
		t.Fatalf("source = %+v", src)
	}
	if src.BaseName() != "report" {
		t.Fatalf("base name = %q", src.BaseName())
	}

	_, err := assemble.OpenSource(memdoc.Library{}, "broken.pdf", []byte("garbage"))
	if !errors.Is(err, assemble.ErrUnreadableDocument) {
		t.Fatalf("err = %v, want ErrUnreadableDocument", err)
	}
}

func TestMergeSelections(t *testing.T) {
	a := open(t, "a.pdf", memdoc.Numbered("a", 5))
	b := open(t, "b.pdf", memdoc.Numbered("b", 3))
	asm := assemble.New(memdoc.Library{}, nil)

	art, err := asm.MergeSelections(context.Background(), []assemble.Selection{
		{Source: a, Pages: pagerange.Parse("1, 3-4", a.Pages)},
		{Source: b, Pages: pagerange.Parse("", b.Pages)},
		{Source: a, Pages: pagerange.Parse("99", a.Pages)},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a1", "a3", "a4", "b1", "b2", "b3"}
	if got := labels(t, art); !reflect.DeepEqual(got, want) {
		t.Fatalf("merged pages = %v, want %v", got, want)
	}
	if art.FileName() != "merged_document.pdf" || art.Pages != 6 {
		t.Fatalf("artifact = %s, %d pages", art.FileName(), art.Pages)
	}
}

func TestMergeSelections_AllEmpty(t *testing.T) {
	// WHAT: every selection empty still yields a (page-less) document.
	// WHY: the core reports a degenerate success; rejecting it is caller policy.
	a := open(t, "a.pdf", memdoc.Numbered("a", 2))
	asm := assemble.New(memdoc.Library{}, nil)
	art, err := asm.MergeSelections(context.Background(), []assemble.Selection{
		{Source: a, Pages: pagerange.PageIndexSet{}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := labels(t, art); len(got) != 0 || art.Pages != 0 {
		t.Fatalf("expected empty document, got %v", got)
	}
}

func TestSplitByGroups(t *testing.T) {
	src := open(t, "scan.final.pdf", memdoc.Numbered("p", 12))
	asm := assemble.New(memdoc.Library{}, nil)

	groups := pagerange.ParseGroups("1-5,6-10,11", src.Pages)
	arts, err := asm.SplitByGroups(context.Background(), src, groups)
	if err != nil {
		t.Fatal(err)
	}
	if len(arts) != 3 {
		t.Fatalf("artifacts = %d, want 3", len(arts))
	}
	wantNames := []string{"scan.final_part1.pdf", "scan.final_part2.pdf", "scan.final_part3.pdf"}
	wantPages := [][]string{
		{"p1", "p2", "p3", "p4", "p5"},
		{"p6", "p7", "p8", "p9", "p10"},
		{"p11"},
	}
	for i, a := range arts {
		if a.FileName() != wantNames[i] {
			t.Errorf("artifact %d name = %q, want %q", i, a.FileName(), wantNames[i])
		}
		if got := labels(t, a); !reflect.DeepEqual(got, wantPages[i]) {
			t.Errorf("artifact %d pages = %v, want %v", i, got, wantPages[i])
		}
	}
}

func TestSplitByGroups_KeepsOrderAndDuplicates(t *testing.T) {
	src := open(t, "x.pdf", memdoc.Numbered("p", 5))
	asm := assemble.New(memdoc.Library{}, nil)
	group := pagerange.PageGroup{4, 4, 2}

	first, err := asm.SplitByGroups(context.Background(), src, []pagerange.PageGroup{group})
	if err != nil {
		t.Fatal(err)
	}
	second, err := asm.SplitByGroups(context.Background(), src, []pagerange.PageGroup{group})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"p5", "p5", "p3"}
	if got := labels(t, first[0]); !reflect.DeepEqual(got, want) {
		t.Fatalf("pages = %v, want %v", got, want)
	}
	if !bytes.Equal(first[0].Data, second[0].Data) {
		t.Fatal("same group assembled twice gave different output")
	}
}

func TestSplitByGroups_Errors(t *testing.T) {
	src := open(t, "x.pdf", memdoc.Numbered("p", 3))
	asm := assemble.New(memdoc.Library{}, nil)

	if _, err := asm.SplitByGroups(context.Background(), src, nil); !errors.Is(err, assemble.ErrNoGroups) {
		t.Fatalf("no groups: err = %v", err)
	}
	_, err := asm.SplitByGroups(context.Background(), src, []pagerange.PageGroup{{0}, {3}})
	if !errors.Is(err, assemble.ErrPageOutOfRange) {
		t.Fatalf("out of range: err = %v", err)
	}
}

func TestSplitBySizeBudget(t *testing.T) {
	src := open(t, "big.pdf", memdoc.Numbered("p", 23))
	asm := assemble.New(memdoc.Library{}, nil)

	arts, err := asm.SplitBySizeBudget(context.Background(), src, sizeplan.Plan{PagesPerOutput: 5, OutputCount: 5})
	if err != nil {
		t.Fatal(err)
	}
	var sizes []int
	total := 0
	next := 1
	for i, a := range arts {
		sizes = append(sizes, a.Pages)
		total += a.Pages
		if want := assemble.SizePartName("big", i+1) + ".pdf"; a.FileName() != want {
			t.Errorf("name = %q, want %q", a.FileName(), want)
		}
		for _, l := range labels(t, a) {
			if want := "p" + itoa(next); l != want {
				t.Fatalf("page %q out of order, want %q", l, want)
			}
			next++
		}
	}
	if !reflect.DeepEqual(sizes, []int{5, 5, 5, 5, 3}) || total != 23 {
		t.Fatalf("sizes = %v (total %d)", sizes, total)
	}

	if _, err := asm.SplitBySizeBudget(context.Background(), src, sizeplan.Plan{}); !errors.Is(err, sizeplan.ErrInvalidSizeBudget) {
		t.Fatalf("zero plan: err = %v", err)
	}
}

func TestAssemble_ContextCancelled(t *testing.T) {
	src := open(t, "x.pdf", memdoc.Numbered("p", 3))
	asm := assemble.New(memdoc.Library{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := asm.SplitBySizeBudget(ctx, src, sizeplan.Plan{PagesPerOutput: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestArchive(t *testing.T) {
	arts := []assemble.Artifact{
		{Name: "doc_part1", Ext: "pdf", Data: memdoc.New("p1")},
		{Name: "資料_part2", Ext: "pdf", Data: memdoc.New("p2", "p3")},
	}
	data, err := assemble.Archive(arts)
	if err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("entries = %d", len(zr.File))
	}
	for i, f := range zr.File {
		if f.Name != arts[i].FileName() {
			t.Errorf("entry %d = %q, want %q", i, f.Name, arts[i].FileName())
		}
		if f.Method != zip.Deflate {
			t.Errorf("entry %d method = %d, want deflate", i, f.Method)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		if !bytes.Equal(body, arts[i].Data) {
			t.Errorf("entry %d content mismatch", i)
		}
	}
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":           "report",
		"my.scan.PDF":          "my.scan",
		"noext":                "noext",
		"../../etc/passwd.pdf": "passwd",
		`C:\Users\me\a.pdf`:    "a",
		".pdf":                 "document",
		"":                     "document",
		"bad\x00name.pdf":      "badname",
		"cafe\u0301.pdf":       "caf\u00e9",
	}
	for in, want := range tests {
		if got := assemble.BaseName(in); got != want {
			t.Errorf("BaseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return itoa(n/10) + string(rune('0'+n%10))
}
