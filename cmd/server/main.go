//go:build !js && !wasm

package main

import (
	"context"
	"flag"

	"github.com/beatok/backend/internal/app"
	"github.com/beatok/backend/pkg/logger"
)

var (
	configPath string
	port       int
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to the TOML config file (default $BEATOK_CONFIG or beatok.toml)")
	flag.IntVar(&port, "port", 0, "HTTP server port (overrides config)")
}

func main() {
	flag.Parse()
	log := logger.GetLogger()

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	service, err := app.NewService(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	server := NewServer(service, &ServerConfig{
		Port:           cfg.Server.Port,
		DBPath:         cfg.Database.Path,
		StorageType:    cfg.Storage.Type,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
	})
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
