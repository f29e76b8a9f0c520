package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"game-session-engine/handlers"
	"game-session-engine/middleware"
	"game-session-engine/models"
	"game-session-engine/services"
	"game-session-engine/store"
	"game-session-engine/utils"
	"game-session-engine/workers"
	"game-session-engine/ws"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		ReadBufferSize: 16 * 1024,
	})

	// 🔐 Only Gateway requests allowed (disabled when token unset)
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Storage backend: Postgres when DATABASE_URL is set, otherwise an
	// in-memory store (single-instance deployments and local dev).
	var st store.Store
	dsn := os.Getenv("DATABASE_URL")
	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatal("failed to connect to database:", err)
		}
		if err := db.AutoMigrate(
			&models.MatchmakingTicket{},
			&models.GameSession{},
			&models.PlayerSlot{},
		); err != nil {
			log.Fatal("failed to migrate database:", err)
		}
		st = store.NewGormStore(db)
		log.Println("✅ Postgres store ready")
	} else {
		log.Println("⚠️  DATABASE_URL not set — using in-memory store")
		st = store.NewMemoryStore()
	}

	hub := ws.NewHub()
	matchmaking := services.NewMatchmakingService(st, hub, nil)
	sessions := services.NewSessionService(st, hub)

	sweeper := services.NewSweeper(sessions, matchmaking, hub)
	if utils.R2Enabled() {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		sweeper.Uploader = utils.UploadArchive
		log.Println("✅ Session archive export enabled")
	} else {
		log.Println("⚠️  R2 not configured — finished sessions are deleted without export")
	}

	sched, err := sweeper.Start(services.DefaultSweepInterval)
	if err != nil {
		log.Fatal("failed to start sweep scheduler:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	matchWorker := workers.NewMatchWorker(matchmaking)
	go workers.PollQueues(ctx, matchWorker, 5*time.Second)

	handlers.SetupRealtimeRoutes(app, hub, matchmaking, sessions)
	handlers.SetupSessionRoutes(app, matchmaking, sessions)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Matchmaking queue polling running (every 5s)")
	log.Println("✅ Sweep scheduler running (every 30s)")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = sched.Shutdown()
	if err := app.Shutdown(); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
