package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"gigchat/client/internal/config"
	"gigchat/client/internal/stubserver"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("starting gigchat stub server...")

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment as-is")
	}
	cfg := config.Load()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Fatalf("redis at %s not reachable: %v", cfg.RedisAddr, err)
		}
		log.Printf("event fanout through redis at %s", cfg.RedisAddr)
	}

	world := stubserver.NewWorld()
	world.SeedDemo()

	srv := stubserver.New(world, []byte(cfg.JWTSecret), rdb)
	srv.Start(context.Background())

	server := &http.Server{
		Addr:           cfg.ListenAddr,
		Handler:        srv.Router(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	log.Printf("listening on %s", cfg.ListenAddr)
	log.Fatal(server.ListenAndServe())
}
