package main

import (
	"context"

	"github.com/reflinkdb/possum"
)

// RmCmd returns the rm command.
func RmCmd(h *possum.Handle) *Command {
	return &Command{
		Flags: noFlags("rm"),
		Usage: "rm <key>",
		Short: "Delete a key",
		Long:  "Delete key, orphaning its extent for background reclamation.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execRm(o, h, args)
		},
	}
}

func execRm(o *IO, h *possum.Handle, args []string) error {
	if len(args) == 0 {
		return errKeyRequired
	}

	if err := h.SingleDelete([]byte(args[0])); err != nil {
		return err
	}

	o.Println("ok")

	return nil
}
