// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/smartbot/internal/config"
	"github.com/markdave123-py/smartbot/internal/core"
	db "github.com/markdave123-py/smartbot/internal/core/database"
	"github.com/markdave123-py/smartbot/internal/core/ingestion_engine"
	"github.com/markdave123-py/smartbot/internal/core/llm"
	objectclient "github.com/markdave123-py/smartbot/internal/core/object-client"
	"github.com/markdave123-py/smartbot/internal/services"
)

type App struct {
	DBClient     *db.DatabaseClient
	ObjectClient core.ObjectClient
	Completion   core.CompletionClient
	Server       *Server
	logger       *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database initialized and ready")

	var objClient core.ObjectClient
	if cfg.ArchiveEnabled() {
		s3Client, err := objectclient.NewS3Client(appCtx, cfg, logger)
		if err != nil {
			_ = dbClient.Close()
			return nil, fmt.Errorf("couldn't initialize the object client: %w", err)
		}
		objClient = s3Client
	} else {
		logger.Info("s3 archive disabled; uploaded documents are not kept")
	}

	completion, err := llm.NewCompletionClient(appCtx, cfg, logger)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("couldn't initialize the completion client: %w", err)
	}
	logger.Info("completion client ready", zap.String("provider", cfg.LLMProvider), zap.String("model", cfg.CompletionModel))

	useReadability := false
	extractor := ingestion_engine.NewDocconvExtractor(useReadability)

	users := services.NewUserService(dbClient, services.NewLogNotifier(logger), cfg.JWTSecret, cfg.TokenTTL, logger)
	bots := services.NewBotService(dbClient, objClient, extractor, cfg.FreeTierBotLimit, logger)
	queries := services.NewQueryService(dbClient, dbClient, completion, cfg.CompletionModel, cfg.MaxContextRunes, logger)
	history := services.NewHistoryService(dbClient, dbClient, logger)

	server := NewServer(cfg, logger, users, bots, queries, history)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Completion:   completion,
		Server:       server,
		logger:       logger,
	}, nil
}

func (a *App) Close() {
	if closer, ok := a.Completion.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if a.DBClient != nil {
		if err := a.DBClient.Close(); err != nil {
			a.logger.Warn("closing database", zap.Error(err))
		}
	}
}
