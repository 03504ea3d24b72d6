package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/db"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/forecast"
)

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Manage precomputed forecast statistics",
}

var forecastImportCmd = &cobra.Command{
	Use:   "import <seed.yaml>",
	Short: "Import statistics from a YAML seed file into the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := forecast.LoadSeedFile(args[0])
		if err != nil {
			return err
		}

		conn, err := db.ConnectToDB(cmd.Context(), cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer conn.Close()

		store := forecast.NewSQLProvider(conn)
		if err := store.Upsert(cmd.Context(), records); err != nil {
			return err
		}
		total, err := store.Count(cmd.Context())
		if err != nil {
			return err
		}

		logger.Info().Int("imported", len(records)).Int("total", total).Str("dsn", cfg.Database.DSN).Msg("Forecast statistics imported")
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d statistics (%d stored)\n", len(records), total)
		return nil
	},
}

var forecastGetCmd = &cobra.Command{
	Use:     "get <interval> <step>",
	Short:   "Look up one statistic exactly as the tool would",
	Example: "  pangu forecast get 6h 2",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		step, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("step must be an integer: %w", err)
		}

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		stat, err := a.statistics.Statistic(cmd.Context(), args[0], step)
		if errors.Is(err, forecast.ErrDataUnavailable) {
			fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render(err.Error()))
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), answerStyle.Render(stat.String()))
		return nil
	},
}

func init() {
	forecastCmd.AddCommand(forecastImportCmd, forecastGetCmd)
}
