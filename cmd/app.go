package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/db"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/forecast"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/tools"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/models"
)

// app holds the process-wide resources. Everything is created once per
// command invocation and released by Close.
type app struct {
	conn         *sql.DB
	factory      *harness.Factory
	statistics   forecast.StatisticProvider
	registry     *harness.Registry
	models       *models.Service
	orchestrator *harness.Orchestrator
}

// openApp connects the database and the forecast tool. The model service
// is only started when withModel is set.
func openApp(ctx context.Context, withModel bool) (*app, error) {
	conn, err := db.ConnectToDB(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	a := &app{
		conn:    conn,
		factory: harness.NewFactory(&cfg.Harness, &cfg.LLM, conn, logger),
	}

	if a.statistics, err = a.openStatistics(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.registry = harness.NewRegistry()
	if err := a.registry.Register(tools.NewAverageTemperatureTool(a.statistics)); err != nil {
		a.Close()
		return nil, err
	}

	if !withModel {
		return a, nil
	}

	if a.models, err = models.NewService(&cfg.LLM, logger); err != nil {
		a.Close()
		return nil, err
	}
	if a.orchestrator, err = a.factory.CreateOrchestrator(a.models, a.registry); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openStatistics selects the configured statistic source and puts the
// harness cache in front of it.
func (a *app) openStatistics(ctx context.Context) (forecast.StatisticProvider, error) {
	var source forecast.StatisticProvider

	switch cfg.Forecast.Source {
	case "file":
		if cfg.Forecast.SeedFile == "" {
			return nil, errors.New("forecast.seed_file is required when forecast.source is \"file\"")
		}
		records, err := forecast.LoadSeedFile(cfg.Forecast.SeedFile)
		if err != nil {
			return nil, err
		}
		table, err := forecast.NewTable(records...)
		if err != nil {
			return nil, fmt.Errorf("invalid seed file: %w", err)
		}
		logger.Debug().Int("records", len(records)).Str("seed_file", cfg.Forecast.SeedFile).Msg("Loaded forecast seed")
		source = table
	case "database", "":
		sqlProvider := forecast.NewSQLProvider(a.conn)
		n, err := sqlProvider.Count(ctx)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			logger.Warn().Msg("No forecast statistics imported yet; run `pangu forecast import <seed.yaml>`")
		}
		source = sqlProvider
	default:
		return nil, fmt.Errorf("unknown forecast.source %q (expected database or file)", cfg.Forecast.Source)
	}

	return forecast.NewCachedProvider(source, a.factory.CreateCache(), cfg.Harness.CacheTTLSeconds, logger), nil
}

func (a *app) Close() {
	if a.models != nil {
		if err := a.models.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close model service")
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
