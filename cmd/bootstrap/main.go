// Package main 系统引导工具: 建表、建向量集合、导入演示故事模板
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"storyforge-api/internal/config"
	"storyforge-api/internal/domain/entity"
	"storyforge-api/internal/domain/repository"
	"storyforge-api/internal/wire"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化数据层
	boot, cleanup, err := wire.InitializeBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize bootstrap: %v", err)
	}
	defer cleanup()

	// 3. 建表
	fmt.Println("Running database migrations...")
	db := boot.PgClient.DB()
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error; err != nil {
		log.Fatalf("failed to enable pgcrypto: %v", err)
	}
	if err := db.AutoMigrate(
		&entity.Story{},
		&entity.Playthrough{},
		&entity.Session{},
		&entity.ConversationMessage{},
		&entity.Character{},
		&entity.CharacterState{},
		&entity.CharacterMemory{},
		&entity.CharacterBelief{},
		&entity.CharacterKnowledge{},
		&entity.CharacterGoal{},
		&entity.CharacterAvoidance{},
		&entity.Relationship{},
		&entity.SceneState{},
		&entity.SceneCharacter{},
		&entity.StoryFlag{},
		&entity.StoryArc{},
		&entity.StoryEpisode{},
		&entity.Turn{},
		&entity.AppliedTurn{},
	); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	fmt.Println("Database migrations complete.")

	// 4. 建向量集合
	fmt.Println("Ensuring Milvus collection...")
	if err := boot.VectorRepo.EnsureCollection(ctx); err != nil {
		log.Fatalf("failed to ensure milvus collection: %v", err)
	}
	if err := boot.VectorRepo.CreateIndex(ctx); err != nil {
		log.Fatalf("failed to create milvus index: %v", err)
	}
	fmt.Println("Milvus collection ready.")

	// 5. 导入演示故事模板（已有故事时跳过）
	page, err := boot.Stories.List(ctx, repository.NewPagination(1, 1))
	if err != nil {
		log.Fatalf("failed to list stories: %v", err)
	}
	if page.Total > 0 {
		fmt.Printf("Stories already present (%d), skipping demo seed.\n", page.Total)
		fmt.Println("Bootstrap complete.")
		return
	}

	fmt.Println("Seeding demo story template...")
	if err := seedDemoStory(ctx, boot); err != nil {
		log.Fatalf("failed to seed demo story: %v", err)
	}
	fmt.Println("Bootstrap complete.")
}
