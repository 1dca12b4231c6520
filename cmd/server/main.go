package main // Entry point package

import (
	"log" // Logging library

	"github.com/joho/godotenv"    // .env file loader for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/campus-find/internal/config"     // Internal config loader
	"github.com/iliyamo/campus-find/internal/database"   // MySQL connection pool
	"github.com/iliyamo/campus-find/internal/handler"    // HTTP handlers
	"github.com/iliyamo/campus-find/internal/queue"      // registration events
	"github.com/iliyamo/campus-find/internal/repository" // user directory
	"github.com/iliyamo/campus-find/internal/router"     // route registration
)

func main() {
	// Load .env when present; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg := config.Load() // Load environment config

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)

	// Redis backs the auth rate limiter; nil means the limiter
	// disables itself and auth still works.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable, rate limiting disabled")
	}

	// Consume user.registered events in the background; the consumer
	// reconnects on its own and never stops the server.
	go queue.StartRegistrationConsumer()

	a := handler.NewAuthHandler(cfg, users, queue.PublishUserRegistered)

	e := echo.New()
	router.RegisterRoutes(e, a, users, cfg, rdb)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err)
	}
}
