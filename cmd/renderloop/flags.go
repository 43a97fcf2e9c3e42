package main

import (
	flag "github.com/spf13/pflag"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config    string
	quiet     bool
	verbose   bool
	logFormat string
}

// jobFlags holds per-render settings.
type jobFlags struct {
	format       string
	width        int
	height       int
	scale        float64
	pageSize     string
	orientation  string
	margin       float64
	timeout      string
	noBackground bool
	css          string
}

// renderFlags holds all flags for the render command.
type renderFlags struct {
	common commonFlags
	job    jobFlags
	output string
}

// batchFlags holds all flags for the batch command.
type batchFlags struct {
	common  commonFlags
	job     jobFlags
	output  string
	workers int
}

// policyFlags holds correction policy overrides.
type policyFlags struct {
	maxIterations int
	threshold     float64
	window        int
	epsilon       float64
}

// correctFlags holds all flags for the correct command.
type correctFlags struct {
	common     commonFlags
	job        jobFlags
	policy     policyFlags
	topic      string
	outline    []string
	output     string
	htmlOutput string
	styles     string
	report     string
	json       bool
}

// serveFlags holds all flags for the serve command.
type serveFlags struct {
	common  commonFlags
	host    string
	port    int
	workers int
	mode    string
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show debug logs")
	fs.StringVar(&f.logFormat, "log-format", "", "log format: text, json")
}

// addJobFlags adds render settings to a FlagSet.
func addJobFlags(fs *flag.FlagSet, f *jobFlags) {
	fs.StringVarP(&f.format, "format", "f", "", "output format: pdf, png")
	fs.IntVar(&f.width, "width", 0, "viewport width in CSS pixels")
	fs.IntVar(&f.height, "height", 0, "viewport height in CSS pixels")
	fs.Float64Var(&f.scale, "scale", 0, "device scale factor (0-4)")
	fs.StringVarP(&f.pageSize, "page-size", "p", "", "page size: letter, a4, legal")
	fs.StringVar(&f.orientation, "orientation", "", "page orientation: portrait, landscape")
	fs.Float64Var(&f.margin, "margin", 0, "page margin in inches (0.25-3.0)")
	fs.StringVarP(&f.timeout, "timeout", "t", "", "render timeout (e.g., 30s, 2m)")
	fs.BoolVar(&f.noBackground, "no-background", false, "omit CSS backgrounds")
	fs.StringVar(&f.css, "css", "", "stylesheet file injected into each document")
}

// addPolicyFlags adds correction policy flags to a FlagSet.
func addPolicyFlags(fs *flag.FlagSet, f *policyFlags) {
	fs.IntVar(&f.maxIterations, "max-iterations", 0, "fix cycles per session (0 = analyze once)")
	fs.Float64Var(&f.threshold, "threshold", 0, "acceptance score (0-1]")
	fs.IntVar(&f.window, "window", 0, "stop after this many renders without improvement (0 = never)")
	fs.Float64Var(&f.epsilon, "epsilon", 0, "smallest score gain that counts as improvement")
}

// parseRenderFlags parses render command flags and returns positional args.
func parseRenderFlags(args []string, env *Environment) (*flag.FlagSet, *renderFlags, []string, error) {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	f := &renderFlags{}

	fs.StringVarP(&f.output, "output", "o", "", "output file, directory, or - for stdout")
	addCommonFlags(fs, &f.common)
	addJobFlags(fs, &f.job)

	fs.Usage = func() { printRenderUsage(env.Stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	return fs, f, fs.Args(), nil
}

// parseBatchFlags parses batch command flags and returns positional args.
func parseBatchFlags(args []string, env *Environment) (*flag.FlagSet, *batchFlags, []string, error) {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	f := &batchFlags{}

	fs.StringVarP(&f.output, "output", "o", "", "output directory (default: input directory)")
	fs.IntVarP(&f.workers, "workers", "w", 0, "parallel browsers (0 = auto)")
	addCommonFlags(fs, &f.common)
	addJobFlags(fs, &f.job)

	fs.Usage = func() { printBatchUsage(env.Stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, err
	}
	return fs, f, fs.Args(), nil
}

// parseCorrectFlags parses correct command flags.
func parseCorrectFlags(args []string, env *Environment) (*flag.FlagSet, *correctFlags, error) {
	fs := flag.NewFlagSet("correct", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	f := &correctFlags{}

	fs.StringVar(&f.topic, "topic", "", "document topic (required)")
	fs.StringArrayVarP(&f.outline, "section", "s", nil, "outline entry, repeatable (\"Heading: text\")")
	fs.StringVarP(&f.output, "output", "o", "", "artifact output file (default: <topic>.<format>)")
	fs.StringVar(&f.htmlOutput, "html", "", "also write the best revision's HTML to this file")
	fs.StringVar(&f.styles, "styles", "", "directory overriding the embedded draft styles")
	fs.StringVar(&f.report, "report", "", "append a JSON line per session to this file")
	fs.BoolVar(&f.json, "json", false, "print the result as JSON")
	addCommonFlags(fs, &f.common)
	addJobFlags(fs, &f.job)
	addPolicyFlags(fs, &f.policy)

	fs.Usage = func() { printCorrectUsage(env.Stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return fs, f, nil
}

// parseServeFlags parses serve command flags.
func parseServeFlags(args []string, env *Environment) (*flag.FlagSet, *serveFlags, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	f := &serveFlags{}

	fs.StringVar(&f.host, "host", "", "listen host")
	fs.IntVar(&f.port, "port", 0, "listen port (0 = any free port)")
	fs.IntVarP(&f.workers, "workers", "w", 0, "pool size (0 = config value or auto)")
	fs.StringVar(&f.mode, "mode", "", "gin mode: debug, release, test")
	addCommonFlags(fs, &f.common)

	fs.Usage = func() { printServeUsage(env.Stderr) }

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return fs, f, nil
}
