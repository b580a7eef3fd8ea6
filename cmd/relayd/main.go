package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"minigames/internal/config"
	"minigames/internal/relay"
)

func main() {
	configPath := flag.String("config", "", "optional config file; env vars override")
	flag.Parse()

	// Missing .env is fine, config falls back to defaults and env vars.
	_ = godotenv.Load()

	logger := log.New(os.Stdout, "relayd ", log.LstdFlags|log.Lmsgprefix)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	server := relay.NewServer(logger)
	logger.Printf("listening on %s", cfg.RelayAddr)
	if err := server.Run(cfg.RelayAddr); err != nil {
		logger.Fatalf("relay server: %v", err)
	}
}
