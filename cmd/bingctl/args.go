package main

import (
	"github.com/pkg/errors"

	"github.com/bgviewer/binggallery/pkg/bing"
)

var (
	errorWantedNoArgs = errors.New("expected no (non-flag) arguments")
	errorWantedDate   = errors.New("expected a date argument in YYYYMMDD form")
)

func parseDateArg(args []string) (bing.Date, error) {
	if len(args) < 1 {
		return bing.Date{}, errorWantedDate
	}
	d, err := bing.ParseCompact(args[0])
	if err != nil {
		return bing.Date{}, errors.Wrapf(err, "parsing date %q", args[0])
	}
	return d, nil
}
