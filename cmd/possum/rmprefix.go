package main

import (
	"context"

	"github.com/reflinkdb/possum"
)

// RmPrefixCmd returns the rmprefix command.
func RmPrefixCmd(h *possum.Handle) *Command {
	return &Command{
		Flags: noFlags("rmprefix"),
		Usage: "rmprefix <prefix>",
		Short: "Delete every key beginning with prefix",
		Long:  "Delete every key beginning with prefix, enqueueing each one's extent for background reclamation.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execRmPrefix(o, h, args)
		},
	}
}

func execRmPrefix(o *IO, h *possum.Handle, args []string) error {
	if len(args) == 0 {
		return errKeyRequired
	}

	n, err := h.DeletePrefix([]byte(args[0]))
	if err != nil {
		return err
	}

	o.Printf("deleted %d key(s)\n", n)

	return nil
}
