// cmd/api/main.go
// Main entry point for the chat server
// This file bootstraps all components and starts the server

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

    "github.com/aws/aws-sdk-go/aws"
    "github.com/aws/aws-sdk-go/aws/credentials"
    "github.com/aws/aws-sdk-go/aws/session"
    "github.com/go-redis/redis/v8"
    "github.com/gorilla/mux"
    "github.com/jmoiron/sqlx"
    "github.com/joho/godotenv"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    // Internal packages
    "github.com/taskroom/taskroom-backend/internal/auth"
    "github.com/taskroom/taskroom-backend/internal/chat"
    "github.com/taskroom/taskroom-backend/internal/common/database"
    "github.com/taskroom/taskroom-backend/internal/config"
)

func main() {
    log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

    log.Println("========================================")
    log.Println("🚀 Starting Taskroom Chat API")
    log.Println("========================================")

    // 1. Load environment variables
    log.Println("📁 Step 1: Loading .env file...")
    if err := godotenv.Load(); err != nil {
        log.Printf("⚠️  Warning: No .env file found (%v), using environment variables", err)
    } else {
        log.Println("✅ .env file loaded successfully")
    }

    // 2. Load and validate configuration
    log.Println("\n📋 Step 2: Loading configuration...")
    cfg := config.Load()
    if err := cfg.Validate(); err != nil {
        log.Fatal("❌ Configuration validation failed:", err)
    }
    log.Println("✅ Configuration is valid")

    // 3. Connect to PostgreSQL
    log.Println("\n🗄️  Step 3: Connecting to PostgreSQL...")
    db, err := database.NewPostgresDBFromURL(cfg.DatabaseURL)
    if err != nil {
        log.Fatal("❌ Failed to connect to PostgreSQL:", err)
    }
    defer db.Close()
    log.Println("✅ Connected to PostgreSQL successfully")

    // 4. Connect to Redis (optional, presence degrades without it)
    log.Println("\n📮 Step 4: Connecting to Redis...")
    var redisClient *redis.Client
    if cfg.RedisURL != "" {
        redisClient, err = database.NewRedisClientFromURL(cfg.RedisURL)
        if err != nil {
            log.Printf("⚠️  Redis unavailable: %v, continuing without presence", err)
            redisClient = nil
        } else {
            defer redisClient.Close()
            log.Println("✅ Connected to Redis successfully")
        }
    } else {
        log.Println("⚠️  Redis URL not configured, skipping Redis connection")
    }

    // 5. Run database migrations
    log.Println("\n🔨 Step 5: Running database migrations...")
    if err := runMigrations(db); err != nil {
        log.Fatal("❌ Failed to run migrations: ", err)
    }
    log.Println("✅ Database migrations completed")

    // 6. Initialize attachment storage
    log.Println("\n📦 Step 6: Initializing attachment storage...")
    var storage chat.StorageService
    if cfg.UseS3 {
        awsSession, err := session.NewSession(&aws.Config{
            Region: aws.String(cfg.AWSRegion),
            Credentials: credentials.NewStaticCredentials(
                cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "",
            ),
        })
        if err != nil {
            log.Fatal("❌ Failed to create AWS session:", err)
        }
        cdnURL := fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.S3Bucket)
        storage = chat.NewS3Storage(awsSession, cfg.S3Bucket, cdnURL, cfg.MaxUploadSize)
        log.Println("✅ Using S3 for attachments")
    } else {
        storage, err = chat.NewLocalStorage(cfg.LocalUploadDir, cfg.BaseURL, cfg.MaxUploadSize)
        if err != nil {
            log.Fatal("❌ Failed to create local storage:", err)
        }
        log.Printf("✅ Using local directory %s for attachments", cfg.LocalUploadDir)
    }

    // 7. Initialize push notifications
    log.Println("\n🔔 Step 7: Initializing push notifications...")
    var pushService chat.PushService
    if cfg.EnablePush {
        pushService, err = chat.NewFCMPushService(cfg.FCMCredentialsFile)
        if err != nil {
            log.Printf("⚠️  FCM initialization failed: %v, using mock push service", err)
            pushService = chat.NewMockPushService()
        } else {
            log.Println("✅ FCM push notifications enabled")
        }
    } else {
        pushService = chat.NewMockPushService()
        log.Println("⚠️  Using mock push service (development mode)")
    }

    // 8. Wire chat service and websocket hub
    log.Println("\n💬 Step 8: Starting chat service...")
    store := chat.NewPostgresStore(db)
    chatService := chat.NewService(store, storage, redisClient, chat.ServiceConfig{
        HistoryPageLimit:    cfg.HistoryPageLimit,
        AttachmentThreshold: cfg.AttachmentThreshold,
        PresenceTTL:         cfg.PresenceTTL,
    })

    hub := chat.NewHub(chatService, pushService)
    go hub.Run()
    log.Println("✅ WebSocket hub started")

    // 9. Routes
    log.Println("\n🌐 Step 9: Registering routes...")
    router := mux.NewRouter()

    authMiddleware := auth.NewMiddleware(auth.NewResolver(cfg.JWTSecret))

    sessionCfg := chat.SessionConfig{
        MaxMessageSize: cfg.WSMaxMessageSize,
        SendBuffer:     cfg.WSSendBuffer,
        RateLimit:      cfg.WSEventRateLimit,
        RateWindow:     cfg.WSEventRateWindow,
        WriteTimeout:   cfg.WSWriteTimeout,
        PongTimeout:    cfg.WSPongTimeout,
    }
    handler := chat.NewHandler(chatService, hub, sessionCfg, cfg.MaxUploadSize)
    chat.RegisterRoutes(router, handler, authMiddleware.Authenticate)
    chat.RegisterHealthCheck(router, handler)

    router.Handle("/metrics", promhttp.Handler()).Methods("GET")

    if !cfg.UseS3 {
        router.PathPrefix("/uploads/").Handler(
            http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.LocalUploadDir))))
    }
    log.Println("✅ Routes registered")

    // 10. Start HTTP server
    srv := &http.Server{
        Addr:         ":" + cfg.Port,
        Handler:      router,
        ReadTimeout:  15 * time.Second,
        WriteTimeout: 15 * time.Second,
        IdleTimeout:  120 * time.Second,
    }

    go func() {
        log.Printf("\n🎧 Server listening on port %s", cfg.Port)
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal("❌ Server failed:", err)
        }
    }()

    // Wait for shutdown signal
    quit := make(chan os.Signal, 1)
    signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
    <-quit

    log.Println("\n⚠️  Shutdown signal received...")

    log.Println("   - Shutting down websocket hub...")
    hub.Shutdown()

    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := srv.Shutdown(ctx); err != nil {
        log.Printf("❌ Server shutdown error: %v", err)
    }
    log.Println("👋 Server stopped")
}

// runMigrations creates the chat schema if it does not exist yet.
func runMigrations(db *sqlx.DB) error {
    migrations := []string{
        `CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            email VARCHAR(255) UNIQUE,
            username VARCHAR(100) UNIQUE NOT NULL,
            display_name VARCHAR(255),
            avatar_url VARCHAR(500),
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

        `CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            sender_id BIGINT NOT NULL REFERENCES users(id),
            recipient_id BIGINT REFERENCES users(id),
            group_id BIGINT,
            content TEXT,
            photo BYTEA,
            photo_content_type VARCHAR(100),
            file BYTEA,
            file_content_type VARCHAR(100),
            file_name VARCHAR(255),
            media_url VARCHAR(500),
            kind VARCHAR(10) NOT NULL DEFAULT 'text',
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            is_edited BOOLEAN NOT NULL DEFAULT FALSE,
            deleted_at TIMESTAMP,
            parent_message_id BIGINT REFERENCES messages(id),
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            CONSTRAINT messages_scope_check CHECK (
                (recipient_id IS NOT NULL AND group_id IS NULL) OR
                (recipient_id IS NULL AND group_id IS NOT NULL)
            )
        )`,

        `CREATE INDEX IF NOT EXISTS idx_messages_private
            ON messages (sender_id, recipient_id, id)
            WHERE recipient_id IS NOT NULL`,

        `CREATE INDEX IF NOT EXISTS idx_messages_group
            ON messages (group_id, id)
            WHERE group_id IS NOT NULL`,

        `CREATE TABLE IF NOT EXISTS message_reactions (
            id BIGSERIAL PRIMARY KEY,
            message_id BIGINT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL REFERENCES users(id),
            emoji VARCHAR(20) NOT NULL,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (message_id, user_id, emoji)
        )`,

        `CREATE TABLE IF NOT EXISTS chat_groups (
            id BIGSERIAL PRIMARY KEY,
            name VARCHAR(120) NOT NULL,
            creator_id BIGINT NOT NULL REFERENCES users(id),
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,

        `CREATE TABLE IF NOT EXISTS chat_group_members (
            group_id BIGINT NOT NULL REFERENCES chat_groups(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL REFERENCES users(id),
            joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (group_id, user_id)
        )`,
    }

    for _, migration := range migrations {
        if _, err := db.Exec(migration); err != nil {
            return fmt.Errorf("migration failed: %w", err)
        }
    }
    return nil
}
