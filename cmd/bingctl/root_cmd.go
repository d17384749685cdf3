package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/spf13/cobra"

	"github.com/bgviewer/binggallery/pkg/bing"
	"github.com/bgviewer/binggallery/pkg/bing/middleware"
	"github.com/bgviewer/binggallery/pkg/cache"
	"github.com/bgviewer/binggallery/pkg/config"
	"github.com/bgviewer/binggallery/pkg/store"
)

type rootOpts struct {
	ConfigDir string
	BaseURL   string
	Verbose   bool

	Manager  *cache.Manager
	Settings *config.Settings
	Logger   log.Logger
}

func newRoot() *rootOpts {
	return &rootOpts{}
}

var rootLongHelp = strings.TrimSpace(`
bingctl drives the daily-image acquisition core from the command line.

Workflow:
  bingctl sync                        # reconcile local metadata with the feed
  bingctl show 20140828               # metadata recorded for a day
  bingctl fetch 20140828              # produce the day's image locally
  bingctl month 201408                # produce a whole month, pool-limited
  bingctl save 20140828 out.jpg       # copy a day's image somewhere
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "bingctl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     false,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", "",
		"directory holding config.ini and local.sqlite (default: the platform config directory)")
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", bing.DefaultBaseURL,
		"base URL of the image host and archive feed")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"log progress to stderr")

	cmd.AddCommand(
		newSync(opts).Command(),
		newShow(opts).Command(),
		newFetch(opts).Command(),
		newMonth(opts).Command(),
		newSave(opts).Command(),
	)
	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	logger := log.NewNopLogger()
	if opts.Verbose {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	}
	opts.Logger = logger

	settings, err := config.Load(opts.ConfigDir)
	if err != nil {
		return err
	}
	opts.Settings = settings

	limiter := &middleware.RateLimiter{RPS: 10, Burst: RequiredBurst(), Logger: logger}
	transport := limiter.RoundTripper(&http.Transport{
		MaxConnsPerHost: cache.RequiredConcurrentWebConnections,
	})

	feed, err := bing.NewClient(opts.BaseURL, transport, logger)
	if err != nil {
		return err
	}

	db, err := store.NewSQLite(settings.DatastorePath, logger)
	if err != nil {
		return err
	}

	opts.Manager, err = cache.New(cache.Config{
		Settings:  settings,
		Feed:      bing.NewInstrumentedClient(feed),
		Store:     store.NewInstrumentedStore(db),
		Transport: transport,
		BaseURL:   opts.BaseURL,
		Logger:    logger,
		Succeed:   limiter.Recover,
	})
	return err
}

// RequiredBurst sizes the rate limiter burst to the connection budget.
func RequiredBurst() int {
	return cache.RequiredConcurrentWebConnections
}

// ready initializes the core; every subcommand calls it first.
func (opts *rootOpts) ready(ctx context.Context) error {
	return opts.Manager.Initialize(ctx)
}
