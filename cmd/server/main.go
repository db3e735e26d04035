package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/hubtalk/internal/config"
	"github.com/quocanhngo/hubtalk/internal/handler"
	"github.com/quocanhngo/hubtalk/internal/metrics"
	"github.com/quocanhngo/hubtalk/internal/middleware"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/internal/presence"
	"github.com/quocanhngo/hubtalk/internal/repository"
	"github.com/quocanhngo/hubtalk/internal/service"
	"github.com/quocanhngo/hubtalk/internal/ws"
	"github.com/quocanhngo/hubtalk/migrations"
	"github.com/quocanhngo/hubtalk/pkg/auth"
	"github.com/quocanhngo/hubtalk/pkg/logger"
	"github.com/quocanhngo/hubtalk/pkg/notification"
	"github.com/quocanhngo/hubtalk/pkg/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// @title           HubTalk API
// @version         1.0
// @description     Chat, presence and call relay of the learning hub: conversations, messages, read receipts, typing status and WebRTC signaling over WebSocket.

// @contact.name   API Support
// @contact.email  support@hubtalk.local

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      api.localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	rollback := flag.Bool("rollback", false, "revert the latest schema migration and exit")
	flag.Parse()

	// ==================== Load Config ====================
	cfg, dotenv := config.Load()
	log := logger.New(cfg.App.Env)
	defer log.Sync()

	if !dotenv {
		log.Info("no .env file found, using environment variables")
	}

	if *rollback {
		if err := migrations.Rollback(cfg.DB.URL(), log); err != nil {
			log.Fatal("failed to roll back migration", zap.Error(err))
		}
		return
	}

	log.Info("starting hubtalk server", zap.String("env", cfg.App.Env))

	// ==================== Database (PostgreSQL) ====================
	gormLog := gormlogger.Default.LogMode(gormlogger.Info)
	if cfg.App.Env == logger.ProductionMode {
		gormLog = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger:  gormLog,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	log.Info("connected to PostgreSQL")

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.URL(), log); err != nil {
		log.Warn("migration failed, falling back to AutoMigrate", zap.Error(err))
		if err := db.AutoMigrate(model.All()...); err != nil {
			log.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})
	defer rdb.Close()

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	log.Info("connected to Redis")

	// ==================== Initialize Layers ====================
	m := metrics.New()
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	verifier := middleware.NewTokenVerifier(jwtManager, rdb)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	callRepo := repository.NewCallRepository(db)

	var presenceStore presence.Store
	switch cfg.Realtime.PresenceBackend {
	case "redis":
		presenceStore = presence.NewRedisStore(rdb, cfg.Realtime.PresenceStaleAfter, log)
	default:
		presenceStore = presence.NewMemoryStore(cfg.Realtime.PresenceStaleAfter)
	}
	log.Info("presence store ready", zap.String("backend", cfg.Realtime.PresenceBackend))

	// Push notifications (optional)
	var notifier service.Notifier
	if fcm := notification.NewNotificationService(ctx, cfg.Firebase.CredentialsFile, userRepo, log); fcm != nil {
		notifier = &meteredNotifier{next: fcm, metrics: m}
	}

	// Services
	userService := service.NewUserService(userRepo, log)

	gateway := ws.NewGateway(ws.Options{
		SendBuffer:     cfg.Realtime.SendBuffer,
		Logger:         log.Named("gateway"),
		Metrics:        m,
		OnStatusChange: userService.SetOnline,
	})

	chatService := service.NewChatService(convRepo, msgRepo, userRepo, gateway, notifier, log)
	presenceService := service.NewPresenceService(presenceStore, convRepo, gateway)
	callService := service.NewCallService(callRepo, convRepo, gateway)

	// MinIO Storage (optional)
	var uploadHandler *handler.UploadHandler
	minioStorage, err := storage.NewMinIO(ctx, storage.Config{
		Endpoint:  cfg.MinIO.Endpoint,
		PublicURL: cfg.MinIO.PublicURL,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	}, log)
	if err != nil {
		log.Warn("MinIO not available, file upload disabled", zap.Error(err))
	} else {
		uploadHandler = handler.NewUploadHandler(minioStorage, log)
		log.Info("connected to MinIO")
	}

	// ==================== Gin Router ====================
	if cfg.App.Env == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handler.Router{
		Chat:   handler.NewChatHandler(chatService, presenceService),
		Calls:  handler.NewCallHandler(callService),
		Users:  handler.NewUserHandler(userService),
		Upload: uploadHandler,
		WS: handler.NewWSHandler(handler.WSHandlerDeps{
			Gateway:         gateway,
			Verifier:        verifier,
			ChatService:     chatService,
			PresenceService: presenceService,
			CallService:     callService,
			Logger:          log.Named("ws"),
			EventTimeout:    cfg.App.RequestTimeout,
		}),
		Verifier:       verifier,
		Logger:         log.Named("http"),
		Metrics:        m,
		CORSOrigins:    cfg.CORS.Origins,
		RequestTimeout: cfg.App.RequestTimeout,
		SwaggerJSON:    "./docs/swagger.json",
	}

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	log.Info("hubtalk API running",
		zap.String("addr", "http://0.0.0.0:"+cfg.App.Port),
		zap.String("docs", "/swagger/index.html"),
		zap.String("websocket", "/ws?token=<jwt>"),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	// Give ongoing requests 5 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// hijacked socket connections are not covered by Shutdown
	gateway.CloseAll()
	log.Info("server exited")
}
