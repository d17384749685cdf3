package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type syncOpts struct {
	*rootOpts
}

func newSync(parent *rootOpts) *syncOpts {
	return &syncOpts{rootOpts: parent}
}

func (opts *syncOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile local metadata with the live feed and print the known date range.",
		RunE:  opts.RunE,
	}
}

func (opts *syncOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) != 0 {
		return errorWantedNoArgs
	}
	ctx := context.Background()
	if err := opts.ready(ctx); err != nil {
		return err
	}
	defer opts.Manager.Shutdown()

	dr, err := opts.Manager.CurrentDateRange()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "metadata covers %s .. %s\n", dr.Min, dr.Max)
	return nil
}
