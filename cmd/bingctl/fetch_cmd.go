package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bgviewer/binggallery/pkg/store"
)

type fetchOpts struct {
	*rootOpts
}

func newFetch(parent *rootOpts) *fetchOpts {
	return &fetchOpts{rootOpts: parent}
}

func (opts *fetchOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <date>",
		Short: "Produce a day's image locally (gallery path) and print its path.",
		RunE:  opts.RunE,
	}
}

func (opts *fetchOpts) RunE(cmd *cobra.Command, args []string) error {
	d, err := parseDateArg(args)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := opts.ready(ctx); err != nil {
		return err
	}
	defer opts.Manager.Shutdown()

	rec, err := opts.Manager.ImageInfo(ctx, d)
	if errors.Cause(err) == store.ErrNotFound {
		return errors.Errorf("no metadata recorded for %s; run `bingctl sync` first", d)
	}
	if err != nil {
		return err
	}

	_, path, err := opts.Manager.ResolveGalleryImage(ctx, rec)
	if err != nil {
		return err
	}
	if path == "" {
		return errors.Errorf("no image could be produced for %s", d)
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}
