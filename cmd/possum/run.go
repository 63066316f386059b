package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/reflinkdb/possum"

	flag "github.com/spf13/pflag"
)

// Run is the main entry point. Returns the process exit code. sigCh can be
// nil if signal handling is not needed (e.g. in tests).
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("possum", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})
	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagDir := globalFlags.StringP("dir", "d", "", "Store `directory` (default: $POSSUM_DIR or ./possum-data)")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	commandAndArgs := globalFlags.Args()

	if *flagHelp || (len(commandAndArgs) == 0 && globalFlags.NFlag() == 0) {
		printUsage(out, stubCommands())
		return 0
	}

	if len(commandAndArgs) == 0 {
		fprintln(errOut, "error: no command provided")
		printUsage(errOut, stubCommands())

		return 1
	}

	dir := *flagDir
	if dir == "" {
		dir = env["POSSUM_DIR"]
	}

	if dir == "" {
		dir = "possum-data"
	}

	h, err := possum.New(context.Background(), possum.Config{Dir: dir})
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}
	defer func() { _ = h.Close() }()

	commands := allCommands(h)

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	cmdName := commandAndArgs[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)

		return 1
	}

	if in == nil {
		in = os.Stdin
	}

	cmdIO := NewIO(in, out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, cmdIO, commandAndArgs[1:])
	}()

	select {
	case exitCode := <-done:
		return exitCode
	case <-sigCh:
		fprintln(errOut, "shutting down with 5s timeout...")
		cancel()
	}

	select {
	case <-done:
		fprintln(errOut, "graceful shutdown ok (130)")
		return 130
	case <-time.After(5 * time.Second):
		fprintln(errOut, "graceful shutdown timed out, forced exit (130)")
		return 130
	case <-sigCh:
		fprintln(errOut, "graceful shutdown interrupted, forced exit (130)")
		return 130
	}
}

// allCommands returns all commands in display order, bound to an open
// store.
func allCommands(h *possum.Handle) []*Command {
	return []*Command{
		PutCmd(h),
		GetCmd(h),
		RmCmd(h),
		LsCmd(h),
		MvCmd(h),
		MvPrefixCmd(h),
		RmPrefixCmd(h),
		LimitsCmd(h),
		InfoCmd(h),
		ShellCmd(h),
	}
}

// stubCommands returns command metadata for the top-level usage listing
// without opening a store, since --help must work even against a
// directory that doesn't exist yet.
func stubCommands() []*Command {
	return allCommands(nil)
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

const globalOptionsHelp = `  -h, --help             Show help
  -d, --dir <directory>  Store directory (default: $POSSUM_DIR or ./possum-data)`

func printGlobalOptions(w io.Writer) {
	fprintln(w, "Usage: possum [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Run 'possum --help' for a list of commands.")
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, "possum - a copy-on-write key/value store")
	fprintln(w)
	fprintln(w, "Usage: possum [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}
}
