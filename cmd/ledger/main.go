// Command ledger audits or rebuilds the inventory summary projection.
//
//	ledger audit    report summaries that disagree with granular stock
//	ledger rebuild  rewrite every summary from granular stock
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"fulfillment-service/config"
	"fulfillment-service/internal/repository"
	"fulfillment-service/internal/service"
	"fulfillment-service/pkg/database"
	"fulfillment-service/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) != 2 || (os.Args[1] != "audit" && os.Args[1] != "rebuild") {
		fmt.Fprintln(os.Stderr, "usage: ledger audit|rebuild")
		os.Exit(2)
	}

	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)
	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	ledger := service.NewLedger(repository.New(db), log)
	ctx := context.Background()

	switch os.Args[1] {
	case "audit":
		list, err := ledger.Audit(ctx)
		if err != nil && !errors.Is(err, service.ErrLedgerDesync) {
			log.Fatal("ledger audit failed", zap.Error(err))
		}
		if len(list) > 0 {
			log.Error("ledger audit found mismatches", zap.Int("count", len(list)))
			logger.Sync()
			os.Exit(1)
		}
		log.Info("ledger consistent")
	case "rebuild":
		n, err := ledger.Rebuild(ctx)
		if err != nil {
			log.Fatal("ledger rebuild failed", zap.Error(err))
		}
		log.Info("ledger rebuilt", zap.Int64("summaries_changed", n))
	}
}
