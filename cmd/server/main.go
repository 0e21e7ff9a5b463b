package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/listening-room-system/internal/auth"
	"github.com/listening-room-system/internal/config"
	"github.com/listening-room-system/internal/middleware"
	"github.com/listening-room-system/internal/playback"
	"github.com/listening-room-system/internal/presence"
	"github.com/listening-room-system/internal/queue"
	"github.com/listening-room-system/internal/resolver"
	"github.com/listening-room-system/internal/room"
	"github.com/listening-room-system/internal/vote"
	"github.com/listening-room-system/internal/ws"
	"github.com/listening-room-system/pkg/database"
	"github.com/listening-room-system/pkg/events"
	"github.com/listening-room-system/pkg/models"
	"github.com/listening-room-system/pkg/redis"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}
	cfg := config.New()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	seedAdmins(ctx, store, cfg.AdminUserIDs)

	// Redis is optional; every consumer treats a nil client as disabled.
	var redisClient *goredis.Client
	if cfg.RedisHost != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisHost + ":" + cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		log.Printf("Warning: REDIS_HOST not set; caching, rate limiting and shared presence are disabled")
	}

	var tracker presence.Tracker
	if redisClient != nil {
		tracker = presence.NewRedisTracker(redisClient, cfg.PresenceTTL)
	} else {
		tracker = presence.NewLocalTracker(cfg.PresenceTTL)
	}

	tokenStore := redis.NewTokenStore(redisClient)
	roomCache := redis.NewRoomCache(redisClient, cfg.RoomCacheTTL)
	hub := ws.NewHub(tracker)

	// Change feed: Kafka when brokers are configured, otherwise in-process.
	var publisher events.Publisher
	onChange := func(change events.Change) {
		if change.Table == events.TableRooms {
			if id, err := uuid.Parse(change.RoomID); err == nil {
				if err := roomCache.Invalidate(context.Background(), id); err != nil {
					log.Printf("Warning: failed to invalidate cached room %s: %v", id, err)
				}
			}
		}
		hub.Dispatch(change)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaClient := events.NewKafkaClient(cfg.KafkaBrokers, cfg.KafkaTopic, consumerGroup(cfg.KafkaGroupID))
		defer kafkaClient.Close()
		publisher = kafkaClient
		go func() {
			if err := kafkaClient.ConsumeChanges(ctx, onChange); err != nil && ctx.Err() == nil {
				log.Printf("Change feed consumer stopped: %v", err)
			}
		}()
	} else {
		bus := events.NewLocalBus()
		bus.Subscribe(onChange)
		publisher = bus
	}

	// Initialize services
	roomService := room.NewService(store, roomCache, publisher, cfg.DefaultLameThreshold)
	queueService := queue.NewService(store, publisher)
	playbackService := playback.NewService(store, publisher, cfg.CrowdSkipCooldown)
	voteService := vote.NewService(store, publisher, tracker)
	trackResolver := resolver.NewClient(&http.Client{Timeout: cfg.ResolverTimeout}, redisClient, cfg.ResolverCacheTTL)

	// Initialize handlers
	authHandler := auth.NewHandler(store, tokenStore, cfg.JWTSecret)
	roomHandler := room.NewHandler(roomService)
	queueHandler := queue.NewHandler(queueService, playbackService)
	playbackHandler := playback.NewHandler(playbackService)
	voteHandler := vote.NewHandler(voteService)
	presenceHandler := presence.NewHandler(tracker)
	resolverHandler := resolver.NewHandler(trackResolver)
	wsHandler := ws.NewHandler(hub, roomService, cfg.AllowedOrigins)

	// Initialize Gin router
	router := gin.Default()

	// CORS middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	v1 := router.Group("/api/v1")

	// Public routes
	authHandler.RegisterRoutes(v1)

	// Protected routes
	protected := v1.Group("")
	protected.Use(auth.AuthMiddleware(cfg.JWTSecret, tokenStore))
	protected.Use(middleware.RateLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitDuration))
	{
		roomHandler.RegisterRoutes(protected)
		queueHandler.RegisterRoutes(protected)
		playbackHandler.RegisterRoutes(protected)
		voteHandler.RegisterRoutes(protected)
		presenceHandler.RegisterRoutes(protected)
		resolverHandler.RegisterRoutes(protected)

		// WebSocket endpoint
		wsHandler.RegisterRoutes(protected)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}

func openStore(cfg *config.Config) (database.Store, error) {
	switch cfg.DBDriver {
	case "mysql":
		return database.NewMySQLDB(cfg.MySQLHost, cfg.MySQLPort, cfg.MySQLUser, cfg.MySQLPassword, cfg.MySQLDatabase, cfg.IsProduction())
	case "postgres":
		return database.NewPostgresDB(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword,
			cfg.PostgresDatabase, cfg.PostgresSSLMode, cfg.IsProduction())
	case "sqlite":
		return database.NewSQLiteDB(cfg.SQLitePath, cfg.IsProduction())
	case "memory":
		log.Printf("Warning: using the in-memory store; state is lost on restart")
		return database.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

// seedAdmins makes sure every configured admin exists and is flagged.
func seedAdmins(ctx context.Context, store database.Store, ids []string) {
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			log.Printf("Warning: ignoring malformed admin id %q", raw)
			continue
		}
		if err := store.EnsureUser(ctx, &models.User{ID: id, Username: "admin-" + id.String()[:8]}); err != nil {
			log.Fatalf("Failed to seed admin %s: %v", id, err)
		}
		if err := store.SetAdmin(ctx, id, true); err != nil {
			log.Fatalf("Failed to seed admin %s: %v", id, err)
		}
	}
}

// Each instance needs every change for its own websocket clients, so
// instances must not share a consumer group.
func consumerGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = uuid.NewString()[:8]
	}
	return base + "-" + host
}
