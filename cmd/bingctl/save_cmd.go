package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bgviewer/binggallery/pkg/store"
)

type saveOpts struct {
	*rootOpts
}

func newSave(parent *rootOpts) *saveOpts {
	return &saveOpts{rootOpts: parent}
}

func (opts *saveOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "save <date> <destination>",
		Short: "Copy a day's image to a destination file.",
		RunE:  opts.RunE,
	}
}

func (opts *saveOpts) RunE(cmd *cobra.Command, args []string) error {
	d, err := parseDateArg(args)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return errors.New("expected a destination path argument")
	}
	dest := args[1]

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

	if err := opts.Manager.SaveImageCopy(ctx, rec, dest); err != nil {
		return errors.Wrapf(err, "saving image for %s", d)
	}
	fmt.Fprintln(cmd.OutOrStdout(), dest)
	return nil
}
