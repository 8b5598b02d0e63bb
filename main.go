package main

import (
	"corpus_qa_backend/internal/app"
	"corpus_qa_backend/internal/config"
	"corpus_qa_backend/pkg/logger"
	"flag"
	"log"
)

func main() {
	// 命令行参数
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	recomputeRelated := flag.Bool("recompute-related", false, "全量重算关联问题后退出")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 设置迁移标志
	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	// 迁移完成后直接退出
	if cfg.MigrateOnly {
		log.Println("数据库迁移完成，退出程序")
		return
	}

	if *recomputeRelated {
		processed, err := application.RecomputeRelated()
		if err != nil {
			log.Fatalf("Related recompute failed: %v", err)
		}
		log.Printf("Related recompute finished, %d records processed", processed)
		return
	}

	application.Run()
}
