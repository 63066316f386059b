package main

import (
	"context"

	"github.com/reflinkdb/possum"

	flag "github.com/spf13/pflag"
)

// LimitsCmd returns the limits command.
func LimitsCmd(h *possum.Handle) *Command {
	fs := flag.NewFlagSet("limits", flag.ContinueOnError)
	maxSum := fs.Int64("max-value-length-sum", 0, "Cap the sum of value lengths staged in a single commit (0: unlimited)")
	disablePunch := fs.Bool("disable-hole-punching", false, "Stop the reclaimer from punching holes, only marking orphans reclaimed")

	return &Command{
		Flags: fs,
		Usage: "limits [flags]",
		Short: "Set instance limits",
		Long:  "Replace the limits enforced on future writes. Limits persist across a reopen of this store directory.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execLimits(o, h, possum.Limits{
				MaxValueLengthSum:   *maxSum,
				DisableHolePunching: *disablePunch,
			})
		},
	}
}

func execLimits(o *IO, h *possum.Handle, lim possum.Limits) error {
	if err := h.SetInstanceLimits(lim); err != nil {
		return err
	}

	o.Printf("max-value-length-sum=%d disable-hole-punching=%v\n", lim.MaxValueLengthSum, lim.DisableHolePunching)

	return nil
}
