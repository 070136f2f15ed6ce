package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"asset-index-sync/infrastructure/config"
	"asset-index-sync/infrastructure/di"
)

var (
	tableName      string
	indexName      string
	pagesPerSecond float64
	pageSize       int
	lockTable      string
	outputJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-index every item of the source table",
	Long: `Scans the source DynamoDB table and writes each item to the search index
through the same chunking, retry and dead-letter pipeline as the stream indexer.
Configuration comes from the environment; flags override it.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBackfill,
}

func init() {
	rootCmd.Flags().StringVar(&tableName, "table", "", "source table name (overrides SOURCE_TABLE_NAME)")
	rootCmd.Flags().StringVar(&indexName, "index", "", "target index name (overrides INDEX_NAME)")
	rootCmd.Flags().Float64Var(&pagesPerSecond, "pages-per-second", 0, "scan page rate limit, 0 for unlimited")
	rootCmd.Flags().IntVar(&pageSize, "page-size", 0, "items per scan page, 0 lets DynamoDB decide")
	rootCmd.Flags().StringVar(&lockTable, "lock-table", "", "DynamoDB table guarding against concurrent runs (overrides LOCK_TABLE_NAME)")
	rootCmd.Flags().BoolVar(&outputJSON, "json", false, "print the summary as JSON")
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	if indexName != "" {
		_ = os.Setenv("INDEX_NAME", indexName)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if tableName != "" {
		cfg.SourceTableName = tableName
	}
	if cmd.Flags().Changed("pages-per-second") {
		cfg.BackfillPagesPerSecond = pagesPerSecond
	}
	if cmd.Flags().Changed("page-size") {
		cfg.BackfillPageSize = pageSize
	}
	if lockTable != "" {
		cfg.LockTableName = lockTable
	}
	if cfg.SourceTableName == "" {
		return errors.New("source table not configured: set SOURCE_TABLE_NAME or --table")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize container: %w", err)
	}
	defer container.Shutdown(context.WithoutCancel(ctx))

	container.Logger.Info("starting backfill",
		zap.String("table", cfg.SourceTableName),
		zap.String("index", cfg.IndexName),
		zap.Float64("pages_per_second", cfg.BackfillPagesPerSecond),
		zap.Bool("locked", cfg.LockTableName != ""),
	)

	summary, runErr := container.Backfill.Run(ctx)

	if outputJSON {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		cmd.Println(string(data))
	} else {
		cmd.Printf("run %s: %d items, %d indexed, %d failed, %d skipped\n",
			summary.BatchID, summary.TotalRecords, summary.Success, summary.Failed, summary.Skipped)
	}

	if runErr != nil {
		return fmt.Errorf("backfill failed: %w", runErr)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
