package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/eep-importer/internal/api"
	"github.com/ignite/eep-importer/internal/archive"
	"github.com/ignite/eep-importer/internal/backend/rest"
	"github.com/ignite/eep-importer/internal/config"
	"github.com/ignite/eep-importer/internal/importer"
	"github.com/ignite/eep-importer/internal/lookupcache"
	"github.com/ignite/eep-importer/internal/pkg/distlock"
	"github.com/ignite/eep-importer/internal/pkg/logger"
	"github.com/ignite/eep-importer/internal/repository/postgres"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale/stub processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

// openDatabase connects with short connect and statement timeouts so a
// stalled database fails a request instead of hanging it.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	dbURL := cfg.URL
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
		sep = "&"
	}
	dbURL += sep + "options=-c%20statement_timeout%3D30000%20-c%20idle_in_transaction_session_timeout%3D30000"
	log.Printf("DB URL host portion: ...@%s/...", extractHost(dbURL))

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  EEP Student Import Server (cmd/server/main.go)            ║")
	log.Println("║  Spreadsheet upload, review and bulk import                ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var db *sql.DB
	if cfg.Database.URL != "" {
		db, err = openDatabase(ctx, cfg.Database)
		if err != nil {
			if cfg.Backend.Type == config.BackendPostgres {
				log.Fatalf("Failed to connect to database: %v", err)
			}
			log.Printf("Warning: database unavailable, commit lock falls back: %v", err)
			db = nil
		} else {
			defer db.Close()
			log.Println("Connected to database")
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = openRedis(ctx, cfg.Redis)
		if err != nil {
			log.Printf("Warning: Redis unavailable at %s, lookup cache disabled: %v", cfg.Redis.Addr, err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Printf("Connected to Redis at %s", cfg.Redis.Addr)
		}
	}

	var backend importer.Backend
	switch cfg.Backend.Type {
	case config.BackendPostgres:
		if db == nil {
			log.Fatalf("Backend type %q needs database.url or DATABASE_URL", cfg.Backend.Type)
		}
		backend = postgres.NewStudentRepo(db)
		log.Println("Student backend: PostgreSQL")
	case config.BackendREST:
		if cfg.Backend.BaseURL == "" {
			log.Fatalf("Backend type %q needs backend.base_url or BACKEND_BASE_URL", cfg.Backend.Type)
		}
		backend = rest.NewClient(cfg.Backend)
		log.Printf("Student backend: REST API at %s", cfg.Backend.BaseURL)
	default:
		log.Fatalf("Unknown backend type %q", cfg.Backend.Type)
	}
	if redisClient != nil {
		backend = lookupcache.New(backend, redisClient, cfg.Redis.LookupTTL())
		log.Printf("Lookup cache enabled (ttl %s)", cfg.Redis.LookupTTL())
	}

	opts := importer.Options{
		MaxFileBytes: cfg.Import.MaxFileBytes(),
		Payload:      importer.PayloadOptions{BirthDateSentinel: cfg.Import.BirthDateSentinel},
		NewCommitLock: func() importer.Lock {
			return distlock.NewLock(redisClient, db, cfg.Import.CommitLockKey, cfg.Import.CommitLockTTL())
		},
	}

	var bucketHeader api.BucketHeader
	if cfg.Archive.Enabled && cfg.Archive.S3Bucket != "" {
		s3Client, err := archive.NewS3Client(ctx, cfg.Archive)
		if err != nil {
			log.Printf("Warning: import archive disabled: %v", err)
		} else {
			bucketHeader = s3Client
			arc := archive.NewWithClient(s3Client, cfg.Archive.S3Bucket, cfg.Archive.S3Prefix)
			opts.OnComplete = func(ctx context.Context, s importer.Summary) {
				go func() {
					archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
					defer cancel()
					if err := arc.Store(archiveCtx, s); err != nil {
						logger.Error("archive import failed", "component", "archive", "session", s.SessionID, "error", err)
					}
				}()
			}
			log.Printf("Import archive enabled: s3://%s/%s", cfg.Archive.S3Bucket, cfg.Archive.S3Prefix)
		}
	}

	sessions := api.NewSessionStore(cfg.Import.SessionTTL(), func(id string) *importer.Session {
		return importer.NewSession(id, backend, opts)
	})
	go sessions.Run(ctx, time.Minute)

	imports := api.NewImportHandlers(sessions, cfg.Import.MaxFileBytes())
	health := api.NewHealthChecker(db, redisClient, bucketHeader, cfg.Archive.S3Bucket, sessions)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           api.SetupRoutes(imports, health, cfg.CORS),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
