package main

import (
	"context"
	"io"
	"os"

	"github.com/reflinkdb/possum"

	flag "github.com/spf13/pflag"
)

// PutCmd returns the put command.
func PutCmd(h *possum.Handle) *Command {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	file := fs.StringP("file", "f", "", "Read the value from `file` instead of stdin")

	return &Command{
		Flags: fs,
		Usage: "put <key> [flags]",
		Short: "Write a value to a key",
		Long:  "Write a value to key, reading its bytes from --file or, by default, stdin.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execPut(o, h, *file, args)
		},
	}
}

func execPut(o *IO, h *possum.Handle, file string, args []string) error {
	if len(args) == 0 {
		return errKeyRequired
	}

	key := args[0]

	var src io.Reader = o

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		src = f
	}

	post, err := h.SingleWriteFrom([]byte(key), src)
	if err != nil {
		return err
	}

	o.Printf("ok, orphaned %d extent(s)\n", len(post.OrphanExtents))

	return nil
}
