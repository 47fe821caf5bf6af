package main

import (
	"context"
	"flag"
	"time"

	"readtrack-backend/lib/browser"
	"readtrack-backend/lib/browser/chrome"
	"readtrack-backend/lib/configutil"
	configsqlite "readtrack-backend/lib/configutil/sqlite"
	"readtrack-backend/lib/progressstore"
	"readtrack-backend/lib/progressstore/db"
	"readtrack-backend/lib/scrapers/kindle/core"
	"readtrack-backend/lib/util/serviceutil"
	"readtrack-backend/services/kindle"
	"readtrack-backend/services/kindle/server"
)

type BrowserConfig struct {
	ProfilePath string `json:"profile_path"`
	Headless    bool   `json:"headless"`
}

type AmazonConfig struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Config struct {
	Port           int                 `json:"port"`
	APIKey         string              `json:"api_key"`
	Database       configsqlite.Struct `json:"database"`
	Browser        BrowserConfig       `json:"browser"`
	Amazon         AmazonConfig        `json:"amazon"`
	ScrapeInterval string              `json:"scrape_interval"`
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	InitTelemetry(ctx, *verbose)

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}

	interval := 30 * time.Minute
	if cfg.ScrapeInterval != "" {
		interval, err = time.ParseDuration(cfg.ScrapeInterval)
		if err != nil {
			serviceutil.Fatal("parse scrape_interval", err)
		}
	}

	database, err := cfg.Database.OpenDB()
	if err != nil {
		serviceutil.Fatal("open database", err)
	}
	_, err = database.Exec(db.Schema)
	if err != nil {
		serviceutil.Fatal("apply schema", err)
	}
	store := progressstore.NewStore(database)

	manager := browser.NewManager(chrome.NewFactory(chrome.Options{
		ProfileDir: cfg.Browser.ProfilePath,
		Headless:   cfg.Browser.Headless,
	}))

	service := kindle.NewService(manager, store, core.Credentials{
		Email:    cfg.Amazon.Email,
		Password: cfg.Amazon.Password,
	})
	go service.ScrapeDaemon(ctx, interval)

	handler := server.NewHandler(service, store, cfg.APIKey)
	go serviceutil.StartHttpServer(cfg.Port, handler)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	manager.Shutdown(shutdownCtx)
}
