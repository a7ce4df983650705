// Package main implements the analyze CLI, an operator tool that runs the
// analysis pipeline in-process without the HTTP server.
//
// Usage:
//
//	go run ./cmd/tools/analyze run "경기도 수원시 영통구 광교로 156" --type house
//	go run ./cmd/tools/analyze compare "경기도 성남시 분당구 판교역로 235" "경기도 수원시 영통구 광교로 156"
//	go run ./cmd/tools/analyze heatmap --region 경기도 --metric roi
//	go run ./cmd/tools/analyze seed-climate
//	go run ./cmd/tools/analyze maintenance purge_archive
//
// Configuration is read the same way as the API server (environment, .env,
// *_FILE secrets). With APP_ENV=local the deterministic stub providers are used.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:          "analyze",
		Short:        "Run SolarScan analyses from the command line",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline activity to stderr")

	rootCmd.AddCommand(runCmd(&verbose))
	rootCmd.AddCommand(compareCmd(&verbose))
	rootCmd.AddCommand(heatmapCmd(&verbose))
	rootCmd.AddCommand(seedClimateCmd(&verbose))
	rootCmd.AddCommand(maintenanceCmd(&verbose))
	return rootCmd
}

func runCmd(verbose *bool) *cobra.Command {
	var (
		buildingType string
		email        string
	)

	cmd := &cobra.Command{
		Use:   "run [address]",
		Short: "Analyse one address and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), *verbose, args[0], buildingType, email)
		},
	}

	cmd.Flags().StringVarP(&buildingType, "type", "t", "house", "building type (house|apartment)")
	cmd.Flags().StringVar(&email, "email", "", "address to notify on completion")
	return cmd
}

func compareCmd(verbose *bool) *cobra.Command {
	var buildingType string

	cmd := &cobra.Command{
		Use:   "compare [address...]",
		Short: "Analyse two to five addresses and report the best location",
		Args:  cobra.RangeArgs(2, 5),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), *verbose, args, buildingType)
		},
	}

	cmd.Flags().StringVarP(&buildingType, "type", "t", "house", "building type (house|apartment)")
	return cmd
}

func heatmapCmd(verbose *bool) *cobra.Command {
	var region, metric string

	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Print per-region values for a heatmap metric",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHeatmap(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), *verbose, region, metric)
		},
	}

	cmd.Flags().StringVar(&region, "region", "gyeonggi", "region name or tag")
	cmd.Flags().StringVar(&metric, "metric", "solar_radiation", "metric to aggregate")
	return cmd
}

func seedClimateCmd(verbose *bool) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "seed-climate",
		Short: "Load the built-in Gyeonggi climate table into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeedClimate(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), *verbose, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite series that already exist")
	return cmd
}

func maintenanceCmd(verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:       "maintenance [task]",
		Short:     "Run one maintenance task immediately",
		Args:      cobra.ExactArgs(1),
		ValidArgs: taskNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaintenance(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), *verbose, args[0])
		},
	}
}
