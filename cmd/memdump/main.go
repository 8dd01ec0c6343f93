// Command memdump replays a scenario of memory model operations and prints
// the resulting snapshot.
//
//	memdump [-level debug] [-format text|yaml|schema] [-color auto|always|never] scenario.yaml
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/speakeasy-api/heapmodel/memorymodel"
	"github.com/speakeasy-api/heapmodel/pkg/dump"
	"gopkg.in/yaml.v3"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("memdump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", "text", "output format: text, yaml or schema")
	level := fs.String("level", "", "log level, overrides the scenario options")
	color := fs.String("color", "auto", "colour text output: auto, always or never")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: memdump [flags] scenario.yaml")
		fs.PrintDefaults()
		return 2
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "memdump: %v\n", err)
		return 1
	}
	defer f.Close()

	sc, err := LoadScenario(f)
	if err != nil {
		fmt.Fprintf(stderr, "memdump: %s: %v\n", fs.Arg(0), err)
		return 1
	}
	if *level != "" {
		sc.Options.LogLevel = *level
	}
	sc.Options.Logger = memorymodel.NewLogger(memorymodel.ParseLogLevel(sc.Options.LogLevel), stderr)

	sn, err := sc.Run(stdout)
	if err != nil {
		fmt.Fprintf(stderr, "memdump: %v\n", err)
		return 1
	}

	switch *format {
	case "text":
		err = dump.Text(stdout, sn, dump.Options{
			Color:     useColor(*color, stdout),
			MaxValues: sc.Options.DumpMaxValues,
		})
	case "yaml":
		err = dump.YAML(stdout, sn)
	case "schema":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err = enc.Encode(dump.VariableSchemas(sn)); err == nil {
			err = enc.Close()
		}
	default:
		err = fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		fmt.Fprintf(stderr, "memdump: %v\n", err)
		return 1
	}
	return 0
}

func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
