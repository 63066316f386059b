package main

import (
	"context"

	"github.com/reflinkdb/possum"
)

// InfoCmd returns the info command.
func InfoCmd(h *possum.Handle) *Command {
	return &Command{
		Flags: noFlags("info"),
		Usage: "info",
		Short: "Show store diagnostics",
		Long:  "Show the directory's minimum hole-punch alignment and whether it supports block-reflink cloning.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execInfo(o, h)
		},
	}
}

func execInfo(o *IO, h *possum.Handle) error {
	blockSize, err := h.BlockSize()
	if err != nil {
		return err
	}

	cloning, err := h.DirSupportsFileCloning()
	if err != nil {
		return err
	}

	o.Printf("block size: %d bytes\n", blockSize)
	o.Printf("block cloning: %v\n", cloning)

	return nil
}
