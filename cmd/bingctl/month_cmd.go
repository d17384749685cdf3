package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/bgviewer/binggallery/pkg/bing"
)

type monthOpts struct {
	*rootOpts
}

func newMonth(parent *rootOpts) *monthOpts {
	return &monthOpts{rootOpts: parent}
}

func (opts *monthOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "month <YYYYMM>",
		Short: "Produce every recorded image of a month (calendar path, pool-limited).",
		RunE:  opts.RunE,
	}
}

func (opts *monthOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New("expected a month argument in YYYYMM form")
	}
	ym, err := strconv.Atoi(args[0])
	if err != nil || ym < 100 {
		return errors.Errorf("bad month %q; expected YYYYMM", args[0])
	}
	year, month := ym/100, time.Month(ym%100)
	if month < time.January || month > time.December {
		return errors.Errorf("bad month %q; expected YYYYMM", args[0])
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

	// Clamp the month's days to the known range.
	var dates []bing.Date
	for d := (bing.Date{Year: year, Month: month, Day: 1}); d.Month == month; d = d.AddDays(1) {
		if !d.Before(dr.Min) && !d.After(dr.Max) {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return errors.Errorf("no days of %s fall in the known range %s .. %s", args[0], dr.Min, dr.Max)
	}

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	done, err := opts.Manager.StartCalendarBatch(ctx, dates, func(d bing.Date, ok bool, path string) {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			fmt.Fprintf(out, "%s\t%s\n", d, path)
		} else {
			fmt.Fprintf(out, "%s\t(unavailable)\n", d)
		}
	})
	if err != nil {
		return err
	}
	<-done
	return nil
}
