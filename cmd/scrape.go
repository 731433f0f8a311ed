package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/feedscrape/internal/model"
	"github.com/sells-group/feedscrape/internal/resilience"
	"github.com/sells-group/feedscrape/internal/service"
)

var (
	scrapeTerms   []string
	scrapeDefault bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run one scrape and print the result as JSON",
}

var scrapeChannelCmd = &cobra.Command{
	Use:   "channel <handle>",
	Short: "Scrape a channel timeline, optionally filtered by --query terms",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := model.ScrapeQuery{
			Kind:      model.KindChannel,
			Target:    args[0],
			Queries:   scrapeTerms,
			IsDefault: scrapeDefault,
		}
		return scrapeOnce(cmd, q)
	},
}

var scrapeSearchCmd = &cobra.Command{
	Use:   "search <term> [term...]",
	Short: "Scrape the latest search results for each term",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := model.ScrapeQuery{
			Kind:      model.KindSearch,
			Queries:   append(append([]string{}, args...), scrapeTerms...),
			IsDefault: scrapeDefault,
		}
		return scrapeOnce(cmd, q)
	},
}

// fetcher is the slice of the service a one-shot scrape uses.
type fetcher interface {
	FetchChannelResults(ctx context.Context, q model.ScrapeQuery) (model.ResultSet, error)
	FetchSearchResults(ctx context.Context, q model.ScrapeQuery) (model.ResultSet, error)
	Close(ctx context.Context) error
}

func scrapeOnce(cmd *cobra.Command, q model.ScrapeQuery) error {
	if err := cfg.Validate("scrape"); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := service.FromConfig(cfg)
	if err != nil {
		return eris.Wrap(err, "scrape: build service")
	}
	return runScrape(ctx, svc, q, cmd.OutOrStdout())
}

func runScrape(ctx context.Context, svc fetcher, q model.ScrapeQuery, out io.Writer) error {
	defer func() {
		if err := svc.Close(context.WithoutCancel(ctx)); err != nil {
			zap.L().Warn("session cleanup", zap.Error(err))
		}
	}()

	fetch := svc.FetchSearchResults
	if q.Kind == model.KindChannel {
		fetch = svc.FetchChannelResults
	}
	rs, err := fetch(ctx, q)
	if err != nil {
		zap.L().Error("scrape failed",
			zap.Stringer("query", q),
			zap.String("kind", string(resilience.KindOf(err))),
			zap.Error(err),
		)
		return eris.New(resilience.PublicMessage(err))
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rs); err != nil {
		return eris.Wrap(err, "scrape: write result")
	}
	return nil
}

func init() {
	for _, c := range []*cobra.Command{scrapeChannelCmd, scrapeSearchCmd} {
		c.Flags().StringSliceVar(&scrapeTerms, "query", nil, "search term (repeatable)")
		c.Flags().BoolVar(&scrapeDefault, "default", false, "mark the query as the default feed")
		scrapeCmd.AddCommand(c)
	}
	rootCmd.AddCommand(scrapeCmd)
}
