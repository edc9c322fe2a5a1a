package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/hazyhaar/pagesmith/horosafe"
	"github.com/hazyhaar/pagesmith/kit"
	"github.com/hazyhaar/pagesmith/pagepipe"
)

// cliPipeline builds a journal-less pipeline for one-shot commands.
func cliPipeline(fs *flag.FlagSet, args []string) (*pagepipe.Pipeline, error) {
	configPath := fs.String("config", "", "path to pagesmith.yaml (pipeline section)")
	logLevel := fs.String("log-level", env("LOG_LEVEL", "warn"), "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	logger := newLogger(*logLevel)

	cfg := pagepipe.Config{}
	if *configPath != "" {
		sc, err := loadServerConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = sc.Pipeline
	}
	cfg.Logger = logger
	return pagepipe.New(cfg), nil
}

func cliContext(ctx context.Context) context.Context {
	return kit.WithTransport(ctx, "cli")
}

func readInput(path string, maxBytes int64) (pagepipe.Input, error) {
	var r io.Reader = os.Stdin
	name := "stdin"
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return pagepipe.Input{}, err
		}
		defer f.Close()
		r = f
		name = filepath.Base(path)
	}
	data, err := horosafe.LimitedReadAll(r, maxBytes)
	if err != nil {
		return pagepipe.Input{}, fmt.Errorf("read %s: %w", path, err)
	}
	return pagepipe.Input{Name: name, Data: data}, nil
}

// splitSelector cuts "file.pdf@1-3,5" into path and range expression.
func splitSelector(arg string) (path, ranges string) {
	if i := strings.LastIndexByte(arg, '@'); i > 0 {
		return arg[:i], arg[i+1:]
	}
	return arg, ""
}

func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "  warning: %s\n", w)
	}
}

func cmdMerge(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	out := fs.String("o", "merged_document.pdf", "output file")
	pipe, err := cliPipeline(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("merge requires at least one input file")
	}

	inputs := make([]pagepipe.MergeInput, 0, fs.NArg())
	for _, arg := range fs.Args() {
		path, ranges := splitSelector(arg)
		in, err := readInput(path, pipe.Config().MaxFileSize+1)
		if errors.Is(err, horosafe.ErrTooLarge) {
			mi := oversized(filepath.Base(path), err)
			mi.Ranges = ranges
			inputs = append(inputs, mi)
			continue
		}
		if err != nil {
			return err
		}
		inputs = append(inputs, pagepipe.MergeInput{Input: in, Ranges: ranges})
	}

	res, err := pipe.Merge(cliContext(ctx), inputs)
	if err != nil {
		return err
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(os.Stderr, "  skipped %s: %s\n", s.Name, s.Reason)
	}
	printWarnings(res.Warnings)
	if err := os.WriteFile(*out, res.Artifact.Data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "done: %s, %d page(s) from %d file(s) (%s)\n",
		*out, res.Artifact.Pages, len(res.Sources), humanize.IBytes(uint64(len(res.Artifact.Data))))
	return nil
}

func cmdSplit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("split", flag.ExitOnError)
	ranges := fs.String("ranges", "", `one output per comma-separated range, e.g. "1-5, 6-10"`)
	size := fs.Float64("size", 0, "max MB per output file (size-budget split)")
	outDir := fs.String("o", ".", "output directory")
	asZip := fs.Bool("zip", false, "write one zip archive instead of separate files")
	pipe, err := cliPipeline(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("split requires exactly one input file")
	}
	if (*ranges == "") == (*size == 0) {
		return errors.New("split requires exactly one of -ranges or -size")
	}

	in, err := readInput(fs.Arg(0), pipe.Config().MaxFileSize+1)
	if err != nil {
		return err
	}
	var res *pagepipe.SplitResult
	if *ranges != "" {
		res, err = pipe.SplitRanges(cliContext(ctx), in, *ranges)
	} else {
		res, err = pipe.SplitSize(cliContext(ctx), in, *size)
	}
	if err != nil {
		return err
	}
	printWarnings(res.Warnings)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	if *asZip {
		return writeOutput(*outDir, res.ArchiveName, res.Archive)
	}
	for _, a := range res.Artifacts {
		if err := writeOutput(*outDir, a.FileName(), a.Data); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "done: %d file(s) in %s\n", len(res.Artifacts), *outDir)
	return nil
}

// writeOutput writes under dir; names derive from upload names and must not
// escape it.
func writeOutput(dir, name string, data []byte) error {
	path, err := horosafe.SafePath(dir, name)
	if err != nil {
		return fmt.Errorf("output %q: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "  %s (%s)\n", path, humanize.IBytes(uint64(len(data))))
	return nil
}

func cmdPlan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	size := fs.Float64("size", 0, "max MB per output file (default from config)")
	pipe, err := cliPipeline(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("plan requires exactly one input file")
	}
	target := *size
	if target == 0 {
		target = pipe.Config().DefaultTargetMB
	}

	in, err := readInput(fs.Arg(0), pipe.Config().MaxFileSize+1)
	if err != nil {
		return err
	}
	res, err := pipe.PlanSize(cliContext(ctx), in, target)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, res.Summary)
	return printJSON(res)
}

func cmdInspect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	pipe, err := cliPipeline(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("inspect requires at least one input file")
	}
	var infos []*pagepipe.SourceInfo
	for _, path := range fs.Args() {
		in, err := readInput(path, pipe.Config().MaxFileSize+1)
		if err != nil {
			return err
		}
		si, err := pipe.Inspect(cliContext(ctx), in)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		infos = append(infos, si)
	}
	return printJSON(infos)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
