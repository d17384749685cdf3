package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bgviewer/binggallery/pkg/store"
)

type showOpts struct {
	*rootOpts
}

func newShow(parent *rootOpts) *showOpts {
	return &showOpts{rootOpts: parent}
}

func (opts *showOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "show <date>",
		Short: "Print the metadata recorded for a day.",
		RunE:  opts.RunE,
	}
}

func (opts *showOpts) RunE(cmd *cobra.Command, args []string) error {
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
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "date:      %s\n", rec.StartDate)
	fmt.Fprintf(out, "url:       %s\n", rec.URL)
	fmt.Fprintf(out, "urlbase:   %s\n", rec.URLBase)
	fmt.Fprintf(out, "caption:   %s\n", rec.Copyright)
	fmt.Fprintf(out, "link:      %s\n", rec.CopyrightLink)
	return nil
}
