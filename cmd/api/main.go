package main

import (
	"log"

	"github.com/Egham-7/adaptive-tiers/internal/config"
	pkgconfig "github.com/Egham-7/adaptive-tiers/pkg/config"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

func main() {
	envFiles := []string{".env.local", ".env.development", ".env"}
	config.LoadEnvFiles(envFiles)

	cfg, err := config.LoadFromFile("config.yaml")
	if err != nil {
		fiberlog.Fatalf("Failed to load config: %v", err)
	}

	server := pkgconfig.NewServer(cfg)

	log.Println("Starting tiered invocation server...")
	if err := server.Run(); err != nil {
		fiberlog.Fatalf("Server failed: %v", err)
	}
}
