package main

import (
	"promo-gate/internal/app/server"
	"promo-gate/internal/config"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.Server.LogLevel)

	server.Run(cfg)
}
