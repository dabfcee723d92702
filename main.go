package main

import (
	"context"
	"log"
	"os"

	"polychat/internal/api"
	"polychat/internal/config"
	"polychat/internal/service/ai"
	"polychat/internal/service/assistant"
	"polychat/internal/service/chat"
	"polychat/internal/service/media"
	"polychat/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("POLYCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("POLYCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create necessary tables: users, messages
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	store := assistant.NewService(db, dbType)

	provider := cfg.BasicConfig.DefaultProvider
	if provider == "" {
		provider = "openai"
	}
	chatModel, err := ai.NewChatModel(context.Background(), cfg, provider)
	if err != nil {
		log.Fatalf("init chat model: %v", err)
	}

	var recommender chat.Recommender
	if cfg.Media.Enabled {
		rec, err := media.NewRecommender(context.Background())
		if err != nil {
			log.Fatalf("init recommender: %v", err)
		}
		recommender = rec
	}

	bot := chat.NewService(store, chatModel, recommender)
	handlers := api.NewHandler(bot, store)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
