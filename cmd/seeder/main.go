package main

import (
	"context"
	"flag"
	"os"
	"time"

	"codeboard/internal/config"
	"codeboard/internal/logger"
	"codeboard/internal/registration"
	"codeboard/internal/repository"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	file := flag.String("file", "registrations.json", "JSON array of {name, profileUrl, profileId, group}")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.Server.Env, cfg.Log.Level)

	logger.Info().Str("file", *file).Msg("🌱 Importing registrations")

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open registrations file")
	}
	defer f.Close()

	requests, err := registration.Decode(f)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to read registrations")
	}

	db, err := initPostgres(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	logger.Info().Msg("✓ Connected to PostgreSQL")

	postgresRepo := repository.NewPostgresRepository(db)
	defer postgresRepo.Close()

	if err := postgresRepo.AutoMigrate(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	startTime := time.Now()
	result, err := registration.NewImporter(postgresRepo).Import(ctx, requests)
	if err != nil {
		logger.Fatal().Err(err).Int("imported", result.Imported).Msg("Import aborted")
	}

	for _, r := range result.Rejected {
		logger.Warn().Int("index", r.Index).Str("profile_id", r.ProfileID).Str("reason", r.Reason).Msg("⚠️ Registration rejected")
	}

	total, err := postgresRepo.CountRegistered(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to count registrations")
	}

	logger.Info().
		Int("imported", result.Imported).
		Int("rejected", len(result.Rejected)).
		Int64("registered", total).
		Dur("took", time.Since(startTime)).
		Msg("🎉 Import finished")
}

// initPostgres initializes PostgreSQL connection
func initPostgres(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}

	return db, nil
}
