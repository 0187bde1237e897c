package main

import (
	"log"
	"os"

	"uoa-scanner/app"
	"uoa-scanner/config"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Printf("❌ Configuration error: %v", err)
		os.Exit(1)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Printf("❌ Startup failed: %v", err)
		os.Exit(1)
	}

	if err := application.Start(); err != nil {
		log.Fatal(err)
	}
}
