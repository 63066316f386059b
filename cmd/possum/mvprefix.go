package main

import (
	"context"

	"github.com/reflinkdb/possum"
)

// MvPrefixCmd returns the mvprefix command.
func MvPrefixCmd(h *possum.Handle) *Command {
	return &Command{
		Flags: noFlags("mvprefix"),
		Usage: "mvprefix <old-prefix> <new-prefix>",
		Short: "Rewrite every key beginning with old-prefix",
		Long:  "Rewrite every key beginning with old-prefix to begin with new-prefix instead, a zero-copy bulk rename over the manifest alone.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execMvPrefix(o, h, args)
		},
	}
}

func execMvPrefix(o *IO, h *possum.Handle, args []string) error {
	if len(args) < 2 {
		return errPrefixesRequired
	}

	n, err := h.MovePrefix([]byte(args[0]), []byte(args[1]))
	if err != nil {
		return err
	}

	o.Printf("moved %d key(s)\n", n)

	return nil
}
