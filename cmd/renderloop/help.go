package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: renderloop <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  render     Render one HTML or markdown document to PDF or PNG")
	fmt.Fprintln(w, "  batch      Render every document in a directory")
	fmt.Fprintln(w, "  correct    Generate a document and correct it until it passes")
	fmt.Fprintln(w, "  serve      Start the HTTP API")
	fmt.Fprintln(w, "  doctor     Check Chrome, environment and configuration")
	fmt.Fprintln(w, "  config     Print the effective configuration")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'renderloop help <command>' for details on a specific command.")
}

func printCommonFlags(w io.Writer) {
	fmt.Fprintln(w, "Common:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "  -q, --quiet               Only show errors")
	fmt.Fprintln(w, "  -v, --verbose             Show debug logs")
	fmt.Fprintln(w, "      --log-format <s>      Log format: text, json")
}

func printJobFlags(w io.Writer) {
	fmt.Fprintln(w, "Render:")
	fmt.Fprintln(w, "  -f, --format <s>          Output format: pdf, png")
	fmt.Fprintln(w, "  -t, --timeout <d>         Render timeout (e.g., 30s, 2m)")
	fmt.Fprintln(w, "      --width <n>           Viewport width in CSS pixels")
	fmt.Fprintln(w, "      --height <n>          Viewport height in CSS pixels")
	fmt.Fprintln(w, "      --scale <f>           Device scale factor (0-4)")
	fmt.Fprintln(w, "      --no-background       Omit CSS backgrounds")
	fmt.Fprintln(w, "      --css <path>          Stylesheet injected into each document")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Page (PDF):")
	fmt.Fprintln(w, "  -p, --page-size <s>       Page size: letter, a4, legal")
	fmt.Fprintln(w, "      --orientation <s>     Orientation: portrait, landscape")
	fmt.Fprintln(w, "      --margin <f>          Margin in inches (0.25-3.0)")
}

// printRenderUsage prints usage for the render command.
func printRenderUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: renderloop render <input> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render an HTML or markdown file. Use - to read HTML from stdin.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -o, --output <path>       Output file, directory, or - for stdout")
	fmt.Fprintln(w)
	printJobFlags(w)
	fmt.Fprintln(w)
	printCommonFlags(w)
}

// printBatchUsage prints usage for the batch command.
func printBatchUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: renderloop batch <directory> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render every .html, .htm and .md file in a directory concurrently.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -o, --output <dir>        Output directory (default: input directory)")
	fmt.Fprintln(w, "  -w, --workers <n>         Parallel browsers (0 = auto)")
	fmt.Fprintln(w)
	printJobFlags(w)
	fmt.Fprintln(w)
	printCommonFlags(w)
}

// printCorrectUsage prints usage for the correct command.
func printCorrectUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: renderloop correct --topic <s> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Generate a document, then render, analyze and fix it until it reaches")
	fmt.Fprintln(w, "the quality threshold or a bound. Renders PNG unless --format is given.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Content:")
	fmt.Fprintln(w, "      --topic <s>           Document topic (required)")
	fmt.Fprintln(w, "  -s, --section <s>         Outline entry, repeatable (\"Heading: text\")")
	fmt.Fprintln(w, "      --styles <dir>        Directory overriding the embedded draft styles")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Policy:")
	fmt.Fprintln(w, "      --max-iterations <n>  Fix cycles per session (0 = analyze once)")
	fmt.Fprintln(w, "      --threshold <f>       Acceptance score (0-1]")
	fmt.Fprintln(w, "      --window <n>          Stop after n renders without improvement (0 = never)")
	fmt.Fprintln(w, "      --epsilon <f>         Smallest score gain that counts as improvement")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -o, --output <path>       Artifact file (default: <topic>.<format>)")
	fmt.Fprintln(w, "      --html <path>         Also write the best revision's HTML")
	fmt.Fprintln(w, "      --report <path>       Append a JSON line per session")
	fmt.Fprintln(w, "      --json                Print the result as JSON")
	fmt.Fprintln(w)
	printJobFlags(w)
	fmt.Fprintln(w)
	printCommonFlags(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit status is 7 when the session ends below the threshold.")
}

// printServeUsage prints usage for the serve command.
func printServeUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: renderloop serve [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Serve POST /v1/render, POST /v1/deck, POST /v1/correct, GET /v1/pool and GET /health.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Server:")
	fmt.Fprintln(w, "      --host <s>            Listen host")
	fmt.Fprintln(w, "      --port <n>            Listen port (0 = any free port)")
	fmt.Fprintln(w, "  -w, --workers <n>         Pool size (0 = config value or auto)")
	fmt.Fprintln(w, "      --mode <s>            Gin mode: debug, release, test")
	fmt.Fprintln(w)
	printCommonFlags(w)
}

func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: renderloop doctor [--json]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check Chrome, the environment and the configuration.")
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: renderloop config [-c <name>]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Print the effective configuration as YAML.")
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return
	}

	switch args[0] {
	case "render":
		printRenderUsage(env.Stdout)
	case "batch":
		printBatchUsage(env.Stdout)
	case "correct":
		printCorrectUsage(env.Stdout)
	case "serve":
		printServeUsage(env.Stdout)
	case "doctor":
		printDoctorUsage(env.Stdout)
	case "config":
		printConfigUsage(env.Stdout)
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: renderloop version")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show version information.")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: renderloop help [command]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show help for a command.")
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", args[0])
		printUsage(env.Stderr)
	}
}
