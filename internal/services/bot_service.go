package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/smartbot/internal/core"
	"github.com/markdave123-py/smartbot/internal/core/ingestion_engine"
	"github.com/markdave123-py/smartbot/internal/models"
)

const (
	ExportVersion = "1.0"
	BotExportType = "smartbot_export"

	defaultLocation  = "Global"
	importedLocation = "Imported"
)

// BotStoreWithAccounts is what BotService needs from persistence.
type BotStoreWithAccounts interface {
	core.AccountStore
	core.BotStore
}

type BotService struct {
	db            BotStoreWithAccounts
	objects       core.ObjectClient // nil when archival is disabled
	extractor     core.DocumentExtractor
	freeTierLimit int
	now           func() time.Time
	logger        *zap.Logger
}

func NewBotService(db BotStoreWithAccounts, objects core.ObjectClient, extractor core.DocumentExtractor, freeTierLimit int, logger *zap.Logger) *BotService {
	return &BotService{
		db:            db,
		objects:       objects,
		extractor:     extractor,
		freeTierLimit: freeTierLimit,
		now:           time.Now,
		logger:        logger.Named("bots"),
	}
}

// CreateBotInput carries either an uploaded document (automatic mode) or a
// typed organization profile (manual mode).
type CreateBotInput struct {
	OwnerID     string
	Name        string
	Description string
	Mode        string
	Location    string

	FileName    string
	ContentType string
	File        io.Reader

	Profile models.ContextSource
}

// BotExport is the portable representation of a bot.
type BotExport struct {
	Version    string      `json:"version"`
	Type       string      `json:"type"`
	ExportedAt time.Time   `json:"exported_at"`
	Bot        ExportedBot `json:"bot"`
}

type ExportedBot struct {
	Name        string               `json:"name" validate:"required"`
	Description string               `json:"description"`
	Mode        string               `json:"mode" validate:"oneof=automatic manual"`
	Data        models.ContextSource `json:"data"`
	Location    string               `json:"location"`
}

// Create validates the input, enforces the tier cap and stores the bot with
// its default widget config.
func (s *BotService) Create(ctx context.Context, in CreateBotInput) (*models.Bot, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" || in.Description == "" {
		return nil, fmt.Errorf("%w: bot name and description are required", ErrInvalidInput)
	}

	bot := &models.Bot{
		ID:          uuid.NewString(),
		UserID:      in.OwnerID,
		Name:        in.Name,
		Description: in.Description,
		Mode:        in.Mode,
		Location:    orDefault(in.Location, defaultLocation),
		CreatedAt:   s.now().UTC(),
	}

	switch in.Mode {
	case models.ModeAutomatic:
		if in.File == nil || in.FileName == "" {
			return nil, fmt.Errorf("%w: a document is required in automatic mode", ErrInvalidInput)
		}
		if _, err := ingestion_engine.FileType(in.FileName); err != nil {
			return nil, err
		}
	case models.ModeManual:
		if strings.TrimSpace(in.Profile.Name) == "" {
			return nil, fmt.Errorf("%w: organization name is required in manual mode", ErrInvalidInput)
		}
		bot.Source = in.Profile
	default:
		return nil, fmt.Errorf("%w: mode must be automatic or manual", ErrInvalidInput)
	}

	if err := s.checkTier(ctx, in.OwnerID); err != nil {
		return nil, err
	}

	if in.Mode == models.ModeAutomatic {
		src, err := s.ingest(ctx, in.OwnerID, bot.ID, in.FileName, in.ContentType, in.File)
		if err != nil {
			return nil, err
		}
		bot.Source = *src
	}

	if err := s.db.CreateBot(ctx, bot, models.DefaultWidgetConfig(uuid.NewString(), bot.ID)); err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	s.logger.Info("bot created", zap.String("bot_id", bot.ID), zap.String("mode", bot.Mode))
	return bot, nil
}

// ingest extracts the document text and, when archival is enabled, uploads
// the original at the same time. A failed upload only costs the archive.
func (s *BotService) ingest(ctx context.Context, ownerID, botID, fileName, contentType string, file io.Reader) (*models.ContextSource, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read upload: %v", ErrInvalidInput, err)
	}

	var (
		extracted  *core.ExtractedText
		storageKey string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		extracted, err = s.extractor.Extract(gctx, bytes.NewReader(data), fileName)
		return err
	})
	if s.objects != nil {
		key := objectKey(ownerID, botID, fileName)
		g.Go(func() error {
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			if _, err := s.objects.UploadFile(gctx, key, bytes.NewReader(data), contentType); err != nil {
				s.logger.Warn("source archive failed", zap.String("bot_id", botID), zap.Error(err))
				return nil
			}
			storageKey = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &models.ContextSource{
		FileName:   fileName,
		FileType:   extracted.FileType,
		StorageKey: storageKey,
		Content:    extracted.Text,
	}, nil
}

func (s *BotService) checkTier(ctx context.Context, ownerID string) error {
	user, err := s.db.GetUserByID(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("lookup owner: %w", err)
	}
	if user == nil {
		return ErrUnauthorized
	}
	if user.Tier != models.TierFree {
		return nil
	}
	n, err := s.db.CountBotsByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("count bots: %w", err)
	}
	if n >= s.freeTierLimit {
		return fmt.Errorf("%w: free tier allows %d bots", ErrTierLimit, s.freeTierLimit)
	}
	return nil
}

func (s *BotService) List(ctx context.Context, ownerID string) ([]models.Bot, error) {
	return s.db.ListBotsByOwner(ctx, ownerID)
}

func (s *BotService) Get(ctx context.Context, id, ownerID string) (*models.Bot, error) {
	bot, err := s.db.GetOwnedBot(ctx, id, ownerID)
	if err != nil {
		return nil, fmt.Errorf("lookup bot: %w", err)
	}
	if bot == nil {
		return nil, fmt.Errorf("%w: bot", ErrNotFound)
	}
	return bot, nil
}

// Settings returns the widget config, creating the default row when missing.
func (s *BotService) Settings(ctx context.Context, id, ownerID string) (*models.WidgetConfig, error) {
	if _, err := s.Get(ctx, id, ownerID); err != nil {
		return nil, err
	}
	cfg, err := s.db.GetWidgetConfig(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup widget config: %w", err)
	}
	if cfg != nil {
		return cfg, nil
	}
	cfg = models.DefaultWidgetConfig(uuid.NewString(), id)
	if err := s.db.UpsertWidgetConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("create widget config: %w", err)
	}
	return cfg, nil
}

// UpdateSettings overwrites the non-empty fields of patch.
func (s *BotService) UpdateSettings(ctx context.Context, id, ownerID string, patch models.WidgetConfig) (*models.WidgetConfig, error) {
	cfg, err := s.Settings(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	cfg.Theme = orDefault(patch.Theme, cfg.Theme)
	cfg.Position = orDefault(patch.Position, cfg.Position)
	cfg.WelcomeMessage = orDefault(patch.WelcomeMessage, cfg.WelcomeMessage)
	cfg.PrimaryColor = orDefault(patch.PrimaryColor, cfg.PrimaryColor)

	if err := s.db.UpsertWidgetConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("update widget config: %w", err)
	}
	return cfg, nil
}

// EmbedCode renders the script tag that loads the widget for this bot.
func (s *BotService) EmbedCode(ctx context.Context, id, ownerID, baseURL string) (string, error) {
	cfg, err := s.Settings(ctx, id, ownerID)
	if err != nil {
		return "", err
	}
	baseURL = strings.TrimRight(baseURL, "/")
	attr := html.EscapeString
	return fmt.Sprintf(
		`<script src="%s/widget.js" data-bot-id="%s" data-api-url="%s/api" data-theme="%s" data-position="%s" data-welcome="%s" data-color="%s" defer></script>`,
		attr(baseURL), attr(id), attr(baseURL), attr(cfg.Theme), attr(cfg.Position), attr(cfg.WelcomeMessage), attr(cfg.PrimaryColor),
	), nil
}

// Delete hides the bot, or with purge removes it and everything it owns.
func (s *BotService) Delete(ctx context.Context, id, ownerID string, purge bool) error {
	if !purge {
		if err := s.db.SoftDeleteBot(ctx, id, ownerID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				return fmt.Errorf("%w: bot", ErrNotFound)
			}
			return fmt.Errorf("soft delete bot: %w", err)
		}
		s.logger.Info("bot soft deleted", zap.String("bot_id", id))
		return nil
	}

	key, err := s.db.HardDeleteBot(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("%w: bot", ErrNotFound)
		}
		return fmt.Errorf("hard delete bot: %w", err)
	}
	s.logger.Info("bot purged", zap.String("bot_id", id))

	if key != "" && s.objects != nil {
		if err := s.objects.DeleteFile(ctx, key); err != nil {
			s.logger.Warn("source archive not removed", zap.String("bot_id", id), zap.Error(err))
		}
	}
	return nil
}

// OpenSource streams the archived original document of an automatic bot.
func (s *BotService) OpenSource(ctx context.Context, id, ownerID string) (io.ReadCloser, *models.ContextSource, error) {
	bot, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if s.objects == nil || bot.Source.StorageKey == "" {
		return nil, nil, fmt.Errorf("%w: no archived source", ErrNotFound)
	}
	rc, err := s.objects.GetObjectReader(ctx, bot.Source.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open source: %w", err)
	}
	return rc, &bot.Source, nil
}

func (s *BotService) Export(ctx context.Context, id, ownerID string) (*BotExport, error) {
	bot, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	data := bot.Source
	data.StorageKey = ""
	return &BotExport{
		Version:    ExportVersion,
		Type:       BotExportType,
		ExportedAt: s.now().UTC(),
		Bot: ExportedBot{
			Name:        bot.Name,
			Description: bot.Description,
			Mode:        bot.Mode,
			Data:        data,
			Location:    bot.Location,
		},
	}, nil
}

// Import recreates an exported bot for ownerID. The tier cap applies.
func (s *BotService) Import(ctx context.Context, ownerID string, doc BotExport) (*models.Bot, error) {
	if doc.Type != BotExportType {
		return nil, fmt.Errorf("%w: not a bot export", ErrInvalidInput)
	}
	if strings.TrimSpace(doc.Bot.Name) == "" {
		return nil, fmt.Errorf("%w: bot name is required", ErrInvalidInput)
	}
	if doc.Bot.Mode != models.ModeAutomatic && doc.Bot.Mode != models.ModeManual {
		return nil, fmt.Errorf("%w: mode must be automatic or manual", ErrInvalidInput)
	}
	if err := s.checkTier(ctx, ownerID); err != nil {
		return nil, err
	}

	data := doc.Bot.Data
	data.StorageKey = ""
	bot := &models.Bot{
		ID:          uuid.NewString(),
		UserID:      ownerID,
		Name:        strings.TrimSpace(doc.Bot.Name),
		Description: doc.Bot.Description,
		Mode:        doc.Bot.Mode,
		Source:      data,
		Location:    orDefault(doc.Bot.Location, importedLocation),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.db.CreateBot(ctx, bot, models.DefaultWidgetConfig(uuid.NewString(), bot.ID)); err != nil {
		return nil, fmt.Errorf("import bot: %w", err)
	}
	s.logger.Info("bot imported", zap.String("bot_id", bot.ID))
	return bot, nil
}

// objectKey creates a consistent S3 key layout.
func objectKey(userID, botID, filename string) string {
	filename = path.Base(strings.TrimSpace(filename))
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("users", userID, "bots", botID, filename)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
