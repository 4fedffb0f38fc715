package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"card-battle-system/handlers"
	"card-battle-system/middleware"
	"card-battle-system/models"
	"card-battle-system/services"
	"card-battle-system/utils"

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
		BodyLimit: 16 * 1024 * 1024, // card art uploads
	})

	// Gateway auth first — a no-op unless ARENA_SERVICE_TOKEN is set
	app.Use(middleware.ServiceAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,PATCH,OPTIONS,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, Cache-Control",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	// TranslateError so a lobby-code collision surfaces as
	// gorm.ErrDuplicatedKey and the allocator can retry
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Room{},
		&models.BattleLogEntry{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	realtimeService := services.NewRealtimeService(db)
	lobbyService := services.NewLobbyService(db, realtimeService)
	battleService := services.NewBattleService(db, realtimeService)
	cardArtService := services.NewCardArtService()

	lobbyService.StartExpirySweeper()

	handlers.SetupLobbyRoutes(app, lobbyService, cardArtService)
	handlers.SetupBattleRoutes(app, battleService, lobbyService)
	handlers.SetupRealtimeRoutes(app, realtimeService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	log.Println("✅ Stale room sweeper running")
	log.Printf("✅ CORS configured for origins: %s", strings.Join(allowedOriginsList, ","))

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
