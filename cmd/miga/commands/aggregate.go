package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Russete77/migadigital/pkg/learning"
	"github.com/Russete77/migadigital/pkg/store"
)

// NewAggregateCmd creates the aggregate command.
func NewAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Recompute daily aggregate metrics",
		Long: `Scan one day of response logs and upsert its aggregate metrics row.
Re-running for the same date overwrites the row.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			dateStr, _ := cmd.Flags().GetString("date")
			return runAggregate(configPath, dateStr)
		},
	}

	cmd.Flags().String("date", "", "Day to aggregate, YYYY-MM-DD (default: yesterday)")

	return cmd
}

func runAggregate(configPath, dateStr string) error {
	date := time.Now().UTC().AddDate(0, 0, -1)
	if dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", dateStr)
		}
		date = parsed
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	st, err := store.NewStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	pipeline := learning.NewPipeline(st, cfg.Learning, learning.LogAlerter{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	dm, err := pipeline.AggregateDaily(ctx, date)
	if err != nil {
		return err
	}

	fmt.Printf("aggregated %s: %d responses, %d rated (avg %.2f), %d crisis\n",
		dm.Date, dm.TotalResponses, dm.RatedCount, dm.AvgRating, dm.CrisisCount)
	return nil
}
