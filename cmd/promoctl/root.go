package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"promo-gate/internal/config"
	"promo-gate/internal/feature"
	"promo-gate/internal/fetcher"
	"promo-gate/internal/promotion"
)

type options struct {
	baseURL        string
	promotionsPath string
	featuresPath   string
	timeout        time.Duration
	logLevel       string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "promoctl",
		Short:         "Inspect promotions and feature flags as the wallet sees them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			config.SetupLogging(opts.logLevel)
		},
	}
	f := cmd.PersistentFlags()
	f.StringVar(&opts.baseURL, "base-url", config.DefaultBaseURL, "backend base URL")
	f.StringVar(&opts.promotionsPath, "promotions-path", "/promotions/active", "promotions endpoint path")
	f.StringVar(&opts.featuresPath, "features-path", "/features", "feature flags endpoint path")
	f.DurationVar(&opts.timeout, "timeout", 5*time.Second, "request timeout")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level")

	cmd.AddCommand(newPromotionsCmd(opts), newFeatureCmd(opts))
	return cmd
}

func (o *options) client() *fetcher.Client {
	return fetcher.New(fetcher.StaticBaseURL(o.baseURL), o.timeout, fetcher.DefaultBreakerConfig())
}

func newPromotionsCmd(opts *options) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "promotions",
		Short: "Print promotions eligible now (or at --at)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t
			}
			repo := promotion.NewRepository(opts.client(), opts.promotionsPath, clock.New(), 0)
			return printPromotions(cmd.OutOrStdout(), repo.FetchEligible(cmd.Context(), now))
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate eligibility at this RFC 3339 time")
	return cmd
}

func printPromotions(w io.Writer, items []promotion.Item) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if items == nil {
		items = []promotion.Item{}
	}
	return enc.Encode(items)
}

func newFeatureCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "feature <id>...",
		Short: "Print whether each feature is enabled (unknown flags read as enabled)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gate := feature.NewGate(opts.client(), opts.featuresPath, clock.New(), 0)
			for _, id := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%t\n", id, gate.IsEnabled(cmd.Context(), id))
			}
			return nil
		},
	}
}
