// Package main is the entry point for the factor risk estimation service.
// It wires the covariance and specific risk estimators into a risk model,
// opens the calculation cache, and serves the estimation API over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/quantfold/riskmodel/internal/config"
	"github.com/quantfold/riskmodel/internal/database"
	"github.com/quantfold/riskmodel/internal/modules/calculations"
	"github.com/quantfold/riskmodel/internal/modules/covariance"
	"github.com/quantfold/riskmodel/internal/modules/riskmodel"
	riskhandlers "github.com/quantfold/riskmodel/internal/modules/riskmodel/handlers"
	"github.com/quantfold/riskmodel/internal/modules/specificrisk"
	"github.com/quantfold/riskmodel/internal/server"
	"github.com/quantfold/riskmodel/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	db, err := database.Open(filepath.Join(cfg.DataDir, "calculations.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open calculation database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate calculation database")
	}
	cache := calculations.NewCache(db.DB)

	factor, err := buildFactorEstimator(cfg.Risk)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build factor covariance estimator")
	}

	specific, err := specificrisk.New(specificrisk.Config{
		Method:              specificrisk.MethodHistorical,
		EWMADecay:           cfg.Risk.EWMADecay,
		MinObservations:     cfg.Risk.MinSpecificObservations,
		ShrinkageStrength:   cfg.Risk.ShrinkageStrength,
		AnnualizationFactor: 1,
		DefaultPriorVol:     0.30,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build specific risk estimator")
	}

	detector, err := covariance.NewRegimeDetector(covariance.RegimeConfig{
		ShortWindow: cfg.Risk.ShortWindow,
		LongWindow:  cfg.Risk.LongWindow,
		MaxScale:    cfg.Risk.RegimeMaxScale,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build regime detector")
	}

	model := riskmodel.New(factor, specific, log)
	svc := riskmodel.NewService(model, log)
	svc.SetCache(cache)

	srv := server.New(server.Config{
		Log:          log,
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		RiskHandlers: riskhandlers.New(svc, detector, log),
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
	log.Info().
		Str("estimator", factor.Name()).
		Int("port", cfg.Port).
		Msg("Risk service started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// buildFactorEstimator maps the configured estimator name onto a concrete
// covariance estimator.
func buildFactorEstimator(cfg config.RiskConfig) (covariance.Estimator, error) {
	switch cfg.Estimator {
	case "ledoit_wolf":
		return covariance.NewLedoitWolf(covariance.ShrinkageConfig{
			Target:          covariance.ShrinkageTarget(cfg.ShrinkageTarget),
			MinShrinkage:    cfg.MinShrinkage,
			MaxShrinkage:    cfg.MaxShrinkage,
			MinObservations: 2,
		})
	case "newey_west":
		nwCfg := covariance.DefaultNeweyWestConfig()
		if cfg.NeweyWestLags >= 0 {
			lags := cfg.NeweyWestLags
			nwCfg.Lags = &lags
		}
		return covariance.NewNeweyWest(nwCfg)
	default:
		ewmaCfg := covariance.DefaultEWMAConfig()
		ewmaCfg.Decay = cfg.EWMADecay
		return covariance.NewEWMA(ewmaCfg)
	}
}
