package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/opentracing/opentracing-go"

	"github.com/mailkeep/mailkeep/config"
	"github.com/mailkeep/mailkeep/internal/database"
	"github.com/mailkeep/mailkeep/internal/logger"
	"github.com/mailkeep/mailkeep/internal/repository"
	"github.com/mailkeep/mailkeep/internal/tracing"
	"github.com/mailkeep/mailkeep/services"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: mailkeep <command>")
		fmt.Println("Commands:")
		fmt.Println("  migrate   Run database migrations")
		fmt.Println("  sync      Start the mail synchronization engine")
		os.Exit(1)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}
	if cfg == nil {
		log.Fatalf("config is empty")
	}

	db, err := database.NewConnection(&database.DatabaseConfig{
		DBName:          cfg.DatabaseConfig.DBName,
		Host:            cfg.DatabaseConfig.Host,
		Port:            cfg.DatabaseConfig.Port,
		User:            cfg.DatabaseConfig.User,
		Password:        cfg.DatabaseConfig.Password,
		MaxConn:         cfg.DatabaseConfig.MaxConn,
		MaxIdleConn:     cfg.DatabaseConfig.MaxIdleConn,
		ConnMaxLifetime: cfg.DatabaseConfig.ConnMaxLifetime,
		LogLevel:        cfg.DatabaseConfig.LogLevel,
		SSLMode:         cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}

	switch os.Args[1] {
	case "migrate":
		if err := repository.MigrateDB(db); err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		log.Println("Database migration completed successfully")

	case "sync":
		appLogger := logger.NewAppLogger(cfg.Logger)
		appLogger.InitLogger()
		defer appLogger.Sync()

		if cfg.Tracing.Enabled {
			tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
			if err != nil {
				appLogger.Fatalf("Could not initialize jaeger tracer: %v", err)
			}
			defer closer.Close()
			opentracing.SetGlobalTracer(tracer)
		}

		repos := repository.InitRepositories(db)
		svcs := services.InitServices(cfg, appLogger, repos)

		ctx := context.Background()
		if err := svcs.MailClient.Start(ctx); err != nil {
			appLogger.Fatalf("Engine startup failed: %v", err)
		}

		appLogger.Infof("%s is running", cfg.AppConfig.AppName)

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
		<-shutdown

		appLogger.Info("shutting down")
		if err := svcs.MailClient.Stop(); err != nil {
			appLogger.Errorf("Engine shutdown failed: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}
