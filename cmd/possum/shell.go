package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/reflinkdb/possum"
)

// ShellCmd returns the shell command, an interactive REPL over the same
// operations the other subcommands expose non-interactively.
func ShellCmd(h *possum.Handle) *Command {
	return &Command{
		Flags: noFlags("shell"),
		Usage: "shell",
		Short: "Open an interactive shell",
		Long:  "Open a line-edited REPL for put/get/rm/ls/mv/mvprefix/rmprefix/info against this store.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return (&shell{handle: h, out: o}).run()
		},
	}
}

// shell is the interactive command loop.
type shell struct {
	handle *possum.Handle
	out    *IO
	liner  *liner.State
}

// shellHistoryFile returns the path to the shell's history file.
func shellHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".possum_history")
}

func (s *shell) run() error {
	s.liner = liner.NewLiner()
	defer func() { _ = s.liner.Close() }()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(shellHistoryFile()); err == nil {
		_, _ = s.liner.ReadHistory(f)
		_ = f.Close()
	}

	s.out.Println("possum shell - type 'help' for commands, 'exit' to quit")

	for {
		line, err := s.liner.Prompt("possum> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				s.out.Println("bye")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if cmd == "exit" || cmd == "quit" || cmd == "q" {
			s.out.Println("bye")
			break
		}

		s.dispatch(cmd, args)
	}

	s.saveHistory()

	return nil
}

func (s *shell) dispatch(cmd string, args []string) {
	var err error

	switch cmd {
	case "help", "?":
		s.printHelp()
		return
	case "put":
		err = s.cmdPut(args)
	case "get":
		err = execGet(s.out, s.handle, args)
	case "rm", "del", "delete":
		err = execRm(s.out, s.handle, args)
	case "ls", "list":
		err = execLs(s.out, s.handle, args)
	case "mv", "rename":
		err = execMv(s.out, s.handle, args)
	case "mvprefix":
		err = execMvPrefix(s.out, s.handle, args)
	case "rmprefix":
		err = execRmPrefix(s.out, s.handle, args)
	case "info":
		err = execInfo(s.out, s.handle)
	default:
		s.out.Printf("unknown command: %s (type 'help' for commands)\n", cmd)
		return
	}

	if err != nil {
		s.out.ErrPrintln("error:", err)
	}
}

// cmdPut writes value, given as the remaining words on the line joined by
// single spaces, to key. put reads from stdin like the non-interactive
// command would conflict with the line editor reading the next prompt, so
// the shell takes the value inline instead.
func (s *shell) cmdPut(args []string) error {
	if len(args) < 2 {
		return errKeyRequired
	}

	value := strings.Join(args[1:], " ")

	post, err := s.handle.SingleWriteFrom([]byte(args[0]), strings.NewReader(value))
	if err != nil {
		return err
	}

	s.out.Printf("ok, orphaned %d extent(s)\n", len(post.OrphanExtents))

	return nil
}

func (s *shell) saveHistory() {
	path := shellHistoryFile()
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	_, _ = s.liner.WriteHistory(f)
}

func (s *shell) completer(line string) []string {
	commands := []string{
		"put", "get", "rm", "del", "delete",
		"ls", "list", "mv", "rename",
		"mvprefix", "rmprefix", "info",
		"help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (s *shell) printHelp() {
	s.out.Println("put <key> <value...>      write value to key")
	s.out.Println("get <key>                 print key's value to stdout")
	s.out.Println("rm <key>                  delete key")
	s.out.Println("ls [prefix]               list keys")
	s.out.Println("mv <old> <new>            rename a key")
	s.out.Println("mvprefix <old> <new>      rewrite a key prefix")
	s.out.Println("rmprefix <prefix>         delete every key with prefix")
	s.out.Println("info                      show block size and cloning support")
	s.out.Println("help                      show this help")
	s.out.Println("exit, quit, q             leave the shell")
}
