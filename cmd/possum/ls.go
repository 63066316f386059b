package main

import (
	"context"

	"github.com/reflinkdb/possum"

	flag "github.com/spf13/pflag"
)

// LsCmd returns the ls command.
func LsCmd(h *possum.Handle) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "ls [prefix]",
		Short: "List keys",
		Long:  "List every key beginning with prefix (the whole key space if omitted), one per line with its value length.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execLs(o, h, args)
		},
	}
}

func execLs(o *IO, h *possum.Handle, args []string) error {
	var prefix []byte
	if len(args) > 0 {
		prefix = []byte(args[0])
	}

	items, err := h.ListItems(prefix)
	if err != nil {
		return err
	}

	for _, item := range items {
		o.Printf("%s\t%d bytes\n", item.Key, item.Location.ValueLength)
	}

	return nil
}
