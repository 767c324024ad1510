package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"tickstep/internal/driver"
	"tickstep/internal/lexer"
	"tickstep/internal/parser"
	"tickstep/internal/static"
	"tickstep/internal/trace"
)

const Version = "v0.1.0"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Println("Recovered from panic:", r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	traceDB := flag.String("trace-db", "", "append one row per visited state to this sqlite file")
	dumpStatic := flag.Bool("dump-static", false, "print the pre-analyzer's static tables before stepping")
	batch := flag.Bool("batch", false, "run to a fixed point with no terminal UI, printing one line per tick")
	showVersion := flag.Bool("version", false, "show version information")
	showHelp := flag.Bool("help", false, "show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tickstep [options] <source_file>\n\nOptions:\n")
		flag.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(os.Stderr, "  --%s\n\t%s\n", f.Name, f.Usage)
		})
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if *showVersion {
		fmt.Printf("tickstep %s\n", Version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	filename := args[0]
	content, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %s\n", err)
		os.Exit(1)
	}
	source := string(content)

	l := lexer.New(source)
	p := parser.New(l)
	module := p.ParseModule()
	if len(p.Errors()) > 0 {
		for _, msg := range p.Errors() {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(1)
	}

	st, err := static.Preprocess(module)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pre-analysis error: %s\n", err)
		os.Exit(1)
	}

	if *dumpStatic {
		dumpStaticTables(os.Stdout, st)
	}

	var recorder *trace.Recorder
	if *traceDB != "" {
		recorder, err = trace.Open(*traceDB)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening trace db: %s\n", err)
			os.Exit(1)
		}
		defer recorder.Close()
	}

	if *batch || !isatty.IsTerminal(os.Stdout.Fd()) {
		if err := driver.RunBatch(os.Stdout, st, recorder); err != nil {
			fmt.Fprintf(os.Stderr, "Runtime error: %s\n", err)
			os.Exit(1)
		}
		return
	}

	model := driver.New(st, source, recorder)
	program := tea.NewProgram(model)
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running UI: %s\n", err)
		os.Exit(1)
	}
}

// dumpStaticTables prints the pre-analyzer's output ahead of stepping,
// the Go-side equivalent of the reference main's unconditional
// println!("{:?}", ast) before its own tick loop — here it is the
// derived Static tables, not the raw AST, that a reader wants to see.
func dumpStaticTables(w *os.File, st *static.Static) {
	lines := make([]int, 0, len(st.Statements))
	for line := range st.Statements {
		lines = append(lines, line)
	}
	sort.Ints(lines)

	fmt.Fprintln(w, "static tables:")
	for _, line := range lines {
		fmt.Fprintf(w, "  line %d: next=%v true=%v false=%v\n",
			line, optInt(st.NextStmt, line), optInt(st.TrueStmt, line), optInt(st.FalseStmt, line))
	}
	for scope, names := range st.DecVars {
		fmt.Fprintf(w, "  decvars[%d] = %v\n", scope, sortedKeys(names))
	}
	for scope, names := range st.Globals {
		if len(names) > 0 {
			fmt.Fprintf(w, "  globals[%d] = %v\n", scope, sortedKeys(names))
		}
	}
	for scope, names := range st.Nonlocals {
		if len(names) > 0 {
			fmt.Fprintf(w, "  nonlocals[%d] = %v\n", scope, sortedKeys(names))
		}
	}
	for header, rng := range st.Block {
		fmt.Fprintf(w, "  block[%d] = (%d, %d)\n", header, rng[0], rng[1])
	}
	for line, parent := range st.Parent {
		fmt.Fprintf(w, "  parent[%d] = %d\n", line, parent)
	}
	fmt.Fprintln(w)
}

func optInt(m map[int]int, key int) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%d", v)
	}
	return "-"
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
