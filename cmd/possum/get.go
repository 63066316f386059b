package main

import (
	"context"

	"github.com/reflinkdb/possum"
)

// GetCmd returns the get command.
func GetCmd(h *possum.Handle) *Command {
	return &Command{
		Flags: noFlags("get"),
		Usage: "get <key>",
		Short: "Read a value by key",
		Long:  "Read key's full value and write it to stdout.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execGet(o, h, args)
		},
	}
}

func execGet(o *IO, h *possum.Handle, args []string) error {
	if len(args) == 0 {
		return errKeyRequired
	}

	val, err := h.ReadSingle([]byte(args[0]))
	if err != nil {
		return err
	}

	_, err = o.Write(val)

	return err
}
