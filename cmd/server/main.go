package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sharknia/tuum-prism/internal/app"
	"github.com/Sharknia/tuum-prism/internal/cache"
	"github.com/Sharknia/tuum-prism/internal/config"
	"github.com/Sharknia/tuum-prism/internal/export"
	"github.com/Sharknia/tuum-prism/internal/images"
	"github.com/Sharknia/tuum-prism/internal/notion"
	"github.com/Sharknia/tuum-prism/internal/render"
	"github.com/Sharknia/tuum-prism/internal/search"
	"github.com/Sharknia/tuum-prism/internal/storage"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	if cfg.NotionToken == "" || cfg.NotionDatabaseID == "" {
		log.Fatal("NOTION_API_KEY and NOTION_DATABASE_ID are required")
	}

	client := notion.NewClient(cfg.NotionBaseURL, cfg.NotionToken)
	posts := notion.NewRepository(client, cfg.NotionDatabaseID)

	// Image externalization needs blob storage; without it signed CMS URLs
	// pass through untouched.
	var processor images.Processor = images.Passthrough{}
	if strings.TrimSpace(cfg.StorageEndpoint) != "" {
		blobStore, err := storage.NewMinio(ctx, storage.Config{
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			Bucket:    cfg.StorageBucket,
			UseSSL:    cfg.StorageUseSSL,
		})
		if err != nil {
			log.Fatalf("blob storage connection failed: %v", err)
		}
		processor = images.NewService(blobStore, images.NewHTTPFetcher())
	} else {
		log.Printf("blob storage not configured, serving CMS image URLs as-is")
	}

	var postCache app.PostCache
	var tokens app.TokenStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedis(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisCache.Close()
		postCache = redisCache
		tokens = redisCache
	} else {
		log.Printf("redis not configured, post caching disabled")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewMemory())

	renderer := render.New(!cfg.Production())
	exporter := export.NewService(renderer)

	service := app.NewService(posts, processor, postCache, tokens, searchService, renderer, exporter)
	service.Bootstrap(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.HookToken)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("prism API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
