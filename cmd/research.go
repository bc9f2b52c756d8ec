package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/procurelens/marketintel/config"
	"github.com/procurelens/marketintel/internal/report"
	"github.com/procurelens/marketintel/internal/research"
	"github.com/procurelens/marketintel/internal/telemetry"
)

// researchCMD runs a single research pass from the command line and prints the
// markdown report, without the API server or any persistence.
func researchCMD() *cobra.Command {
	var cfgPath string
	var workspace string
	var market string
	var categories []string
	var depth string
	var window string

	var cmd = &cobra.Command{
		Use:   "research",
		Short: "Run one research pass and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)

			llm, err := research.NewLLMProvider(cfg.LLM)
			if err != nil {
				return err
			}
			provider, err := research.NewSearchProvider(cfg.Search)
			if err != nil {
				return err
			}
			fetcher, err := research.NewFetcher(cfg.Fetcher)
			if err != nil {
				return err
			}
			tele := telemetry.NewTelemetry(cfg.Telemetry)
			orch := research.NewOrchestrator(cfg, llm, provider, fetcher, tele, nil, nil, nil)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := orch.Execute(ctx, research.ResearchRequest{
				Workspace:  workspace,
				Market:     market,
				Categories: categories,
				Depth:      research.Depth(strings.ToLower(depth)),
				TimeWindow: window,
			})
			if err != nil {
				return err
			}
			fmt.Println(report.Markdown(store))
			return nil
		},
	}
	cmd.Flags().StringVar(&workspace, "workspace", "default", "workspace name")
	cmd.Flags().StringVar(&market, "market", "", "market or product to research (required)")
	cmd.Flags().StringSliceVar(&categories, "categories", []string{"market_overview"}, "analysis categories")
	cmd.Flags().StringVar(&depth, "depth", "medium", "research depth: quick, medium or deep")
	cmd.Flags().StringVar(&window, "window", "", "time window: 6m, 12m or 2y")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	_ = cmd.MarkFlagRequired("market")

	return cmd
}
