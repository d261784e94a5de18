// Command emulator serves a local backend compatible with the hosted one the dashboard talks to.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"

	echoapi "github.com/trezcool/smis/apps/emulator/echo"
	"github.com/trezcool/smis/core"
	"github.com/trezcool/smis/core/baas"
	emailsvc "github.com/trezcool/smis/services/email"
	logsvc "github.com/trezcool/smis/services/logger"
	inmemdb "github.com/trezcool/smis/storage/database/inmem"
	sqlxdb "github.com/trezcool/smis/storage/database/sqlx"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeSchedule   = "@hourly"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "EMULATOR : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err = migrate(context.Background(), conf, dbLogger, os.Args[2:]); err != nil {
			dbLogger.Fatal(err.Error(), err)
		}
		return
	}

	// set up DB
	db, err := setUpDB(conf, dbLogger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	authSvc := baas.NewAuthService(conf, db, db, mailSvc, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// =========================================================================
	// Start Jobs

	jobs := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err = jobs.AddFunc(purgeSchedule, func() { purgeRevokedTokens(authSvc, logger) }); err != nil {
		logger.Fatal(fmt.Sprintf("scheduling jobs: %v", err), err)
	}
	jobs.Start()
	defer func() { <-jobs.Stop().Done() }()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:     conf,
			Logger:   logger,
			Auth:     authSvc,
			Records:  baas.NewRecordService(db, logger),
			Storage:  baas.NewStorageService(conf, db),
			Registry: registry,
		},
	)

	go func() {
		server.Start()
	}()
	logger.Info(fmt.Sprintf("Listening on %s (public URL: %s)", conf.Emulator.Address, conf.Emulator.PublicURL))

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpDB opens PostgreSQL when a database URL is configured and keeps everything in memory otherwise.
func setUpDB(conf *core.Config, logger core.Logger) (baas.Database, error) {
	if conf.Emulator.DatabaseURL == "" {
		logger.Warn("No database URL configured: data is kept in memory")
		return inmemdb.Open()
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return sqlxdb.Open(ctx, conf.Emulator.DatabaseURL, logger)
}

func purgeRevokedTokens(svc *baas.AuthService, logger core.Logger) {
	n, err := svc.PurgeRevokedTokens(context.Background())
	if err != nil {
		logger.Error(fmt.Sprintf("purging revoked tokens: %v", err), err)
		return
	}
	logger.Debug(fmt.Sprintf("purged %d revoked tokens", n))
}
