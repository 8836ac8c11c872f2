package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/noah-isme/fasch-registrar-api/internal/bootstrap"
	"github.com/noah-isme/fasch-registrar-api/pkg/config"
	"github.com/noah-isme/fasch-registrar-api/pkg/database"
	"github.com/noah-isme/fasch-registrar-api/pkg/jobs"
	"github.com/noah-isme/fasch-registrar-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "registrar-admin")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Notification mail raised by commands; jobs still buffered at exit are dropped.
	queue := jobs.NewQueue("admin-notifications", jobs.QueueConfig{
		Workers:    1,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	svc := bootstrap.New(cfg, bootstrap.Infrastructure{DB: db, Queue: queue}, logr)
	queue.Start(context.Background())

	cli := commandLine{
		db:             db.DB,
		migrationTable: cfg.Migrations.Table,
		importer:       func(temp string) importer { return svc.Importer(temp) },
		users:          svc.Users,
		grades:         svc.Grades,
		transcripts:    svc.Transcripts,
		out:            os.Stdout,
		logger:         logr,
	}
	err = cli.run(os.Args)
	queue.Stop()
	if err != nil {
		if err != errHelp {
			logr.Error("command failed", zap.Error(err))
		}
		os.Exit(1)
	}
}
