package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"rag-knowledge-hub/internal/config"
	"rag-knowledge-hub/internal/wire"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting storage bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化存储层；milvus 后端在此创建集合并校验维度
	layer, cleanup, err := wire.InitializeBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize storage layer: %v", err)
	}
	defer cleanup()

	// 3. 建表
	fmt.Println("Migrating documents and chunks tables...")
	if err := layer.PgClient.AutoMigrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	if layer.VectorIndex != nil {
		fmt.Printf("Milvus collection ready (dimension %d).\n", layer.VectorIndex.Dimension())
	} else {
		fmt.Println("Vector backend is memory, skipping Milvus.")
	}

	fmt.Println("Bootstrap completed successfully.")
}
