package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/halcyonwealth/churn-pipeline/internal/config"
	"github.com/halcyonwealth/churn-pipeline/internal/database"
	"github.com/halcyonwealth/churn-pipeline/internal/pipeline"
	"github.com/halcyonwealth/churn-pipeline/pkg/logger"
)

var refDate string

var rootCmd = &cobra.Command{
	Use:   "churnctl",
	Short: "Churn analytics pipeline control",
	Long:  `churnctl runs the churn analytics pipeline and inspects its results without the HTTP service.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a full pipeline run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := time.Now().UTC()
		if refDate != "" {
			parsed, err := time.Parse("2006-01-02", refDate)
			if err != nil {
				return fmt.Errorf("--ref must be YYYY-MM-DD: %w", err)
			}
			ref = parsed
		}

		cfg, db, log, err := setup()
		if err != nil {
			return err
		}
		defer db.Close()

		runner, _ := pipeline.Wire(cfg, db, log)
		run, err := runner.Run(context.Background(), ref)
		if err != nil {
			return err
		}

		return printJSON(run)
	},
}

var qualityCmd = &cobra.Command{
	Use:   "quality [run-id]",
	Short: "Show a run's quality summary (latest completed run by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, log, err := setup()
		if err != nil {
			return err
		}
		defer db.Close()

		_, runs := pipeline.Wire(cfg, db, log)

		var payload []byte
		if len(args) == 1 {
			payload, err = runs.QualityFor(args[0])
		} else {
			payload, err = runs.LatestQuality()
		}
		if err != nil {
			return err
		}

		fmt.Println(string(payload))
		return nil
	},
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the most recently started run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, log, err := setup()
		if err != nil {
			return err
		}
		defer db.Close()

		_, runs := pipeline.Wire(cfg, db, log)
		run, err := runs.Latest()
		if err != nil {
			return err
		}

		return printJSON(run)
	},
}

func setup() (*config.Config, *database.DB, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	db, err := database.New(cfg.ResultsPath)
	if err != nil {
		return nil, nil, log, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, log, err
	}

	return cfg, db, log, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	runCmd.Flags().StringVar(&refDate, "ref", "", "reference date (YYYY-MM-DD), defaults to today")
	rootCmd.AddCommand(runCmd, qualityCmd, latestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
