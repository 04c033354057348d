package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wasmlower/wasmlower/adapter"
	"github.com/wasmlower/wasmlower/bytecode"
	"github.com/wasmlower/wasmlower/lower"
	"github.com/wasmlower/wasmlower/wasm"
)

func main() {
	os.Exit(doMain(os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer) int {
	if len(os.Args) < 2 {
		printUsage(stdErr)
		return 1
	}

	switch os.Args[1] {
	case "lower":
		return doLower(os.Args[2:], stdOut, stdErr)
	case "version":
		fmt.Fprintln(stdOut, "wasmlower 0.1.0")
		return 0
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		return 1
	}
}

func doLower(args []string, stdOut, stdErr io.Writer) int {
	logger := newLogger()
	defer logger.Sync() //nolint:errcheck

	if len(args) < 1 {
		fmt.Fprintln(stdErr, "missing path to wasm file")
		printLowerUsage(stdErr)
		return 1
	}
	wasmPath := args[0]

	data, err := os.ReadFile(wasmPath)
	if err != nil {
		logger.Errorw("reading wasm binary", "path", wasmPath, "error", err)
		return 1
	}

	module, err := wasm.Decode(data)
	if err != nil {
		logger.Errorw("decoding wasm module", "path", wasmPath, "error", err)
		return 1
	}

	out, err := adapter.Lower(module, lower.NewConfig())
	if err != nil {
		logger.Errorw("lowering wasm module", "path", wasmPath, "error", err)
		return 1
	}

	logger.Infow("lowered module",
		"path", wasmPath,
		"functions", len(out.Functions),
		"globalInits", len(out.GlobalInits),
		"elementOffsets", len(out.ElementOffsets),
		"dataOffsets", len(out.DataOffsets),
	)

	if os.Getenv("DUMP_BYTECODE") != "" {
		dumpModule(stdOut, out)
	}

	return 0
}

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		// zap itself failing to build is not something this CLI can recover
		// from meaningfully; fall back to a no-op logger rather than crash.
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "wasmlower CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  wasmlower <command>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "  lower\t\tDecodes and lowers a WebAssembly binary to bytecode")
	fmt.Fprintln(stdErr, "  version\tDisplays the version of the wasmlower CLI")
}

func printLowerUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "Usage:\n  wasmlower lower <path to wasm file>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Set DUMP_BYTECODE=1 to print a disassembly of each lowered function.")
}

var (
	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	offsetStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	opStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
	fieldStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
)

// dumpModule renders a disassembly table for every lowered function (§6,
// "An optional environment flag, conventionally named DUMP_BYTECODE,
// controls whether debug dumps of each finalized function are printed").
// The format is unspecified and diagnostic, so this rendering is free to
// change without breaking anything that consumes the adapter's output.
func dumpModule(w io.Writer, m *adapter.Module) {
	dumpGroup(w, "functions", m.Functions)
	dumpGroup(w, "global inits", m.GlobalInits)
	dumpGroup(w, "element offsets", m.ElementOffsets)
	dumpGroup(w, "data offsets", m.DataOffsets)
}

func dumpGroup(w io.Writer, label string, fns []adapter.ModuleFunction) {
	for _, mf := range fns {
		fmt.Fprintln(w, headingStyle.Render(fmt.Sprintf("%s[%d] frame=%d bytes=%d", label, mf.Index, mf.FrameSize, len(mf.Bytecode))))
		dumpRecords(w, mf.Bytecode)
		fmt.Fprintln(w)
	}
}

func dumpRecords(w io.Writer, code []byte) {
	buf := bytecode.WrapBytes(code)
	offset := 0
	for offset < len(code) {
		r, next, err := buf.DecodeAt(offset)
		if err != nil {
			fmt.Fprintf(w, "  %s %v\n", offsetStyle.Render(fmt.Sprintf("%04x", offset)), err)
			return
		}
		fmt.Fprintf(w, "  %s %s %s\n",
			offsetStyle.Render(fmt.Sprintf("%04x", offset)),
			opStyle.Render(r.Op.String()),
			fieldStyle.Render(recordFields(r)))
		offset = next
	}
}

func recordFields(r bytecode.Record) string {
	s := fmt.Sprintf("A=%d B=%d C=%d D=%d Value=%d", r.A, r.B, r.C, r.D, r.Value)
	if len(r.Tail) > 0 {
		s += fmt.Sprintf(" Tail=%v", r.Tail)
	}
	return s
}
