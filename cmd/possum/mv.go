package main

import (
	"context"

	"github.com/reflinkdb/possum"
)

// MvCmd returns the mv command.
func MvCmd(h *possum.Handle) *Command {
	return &Command{
		Flags: noFlags("mv"),
		Usage: "mv <old-key> <new-key>",
		Short: "Rename a key",
		Long:  "Atomically retarget old-key's location onto new-key, a zero-copy rename over the manifest alone.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execMv(o, h, args)
		},
	}
}

func execMv(o *IO, h *possum.Handle, args []string) error {
	if len(args) < 2 {
		return errOldNewKeyRequired
	}

	if err := h.RenameItem([]byte(args[0]), []byte(args[1])); err != nil {
		return err
	}

	o.Println("ok")

	return nil
}
