package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/smartbot/internal/core"
	"github.com/markdave123-py/smartbot/internal/models"
)

const (
	ChatExportType = "smartbot_chat_export"

	recentChatsLimit = 10
	analyticsWindow  = 7 * 24 * time.Hour
)

type ChatHistory struct {
	BotName       string              `json:"bot_name"`
	TotalMessages int                 `json:"total_messages"`
	History       []models.ChatRecord `json:"history"`
}

type ChatExport struct {
	Version       string         `json:"version"`
	Type          string         `json:"type"`
	ExportedAt    time.Time      `json:"exported_at"`
	BotName       string         `json:"bot_name"`
	TotalMessages int            `json:"total_messages"`
	Conversations []Conversation `json:"conversations"`
}

type Conversation struct {
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

type Analytics struct {
	TotalMessages    int                 `json:"total_messages"`
	MessagesThisWeek int                 `json:"messages_this_week"`
	RecentChats      []models.ChatRecord `json:"recent_chats"`
}

// HistoryService exposes the chat record store to bot owners.
type HistoryService struct {
	bots    core.BotStore
	records core.ChatRecordStore
	now     func() time.Time
	logger  *zap.Logger
}

func NewHistoryService(bots core.BotStore, records core.ChatRecordStore, logger *zap.Logger) *HistoryService {
	return &HistoryService{bots: bots, records: records, now: time.Now, logger: logger.Named("history")}
}

func (s *HistoryService) ownedBot(ctx context.Context, botID, ownerID string) (*models.Bot, error) {
	bot, err := s.bots.GetOwnedBot(ctx, botID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("lookup bot: %w", err)
	}
	if bot == nil {
		return nil, fmt.Errorf("%w: bot", ErrNotFound)
	}
	return bot, nil
}

// History lists the bot's records newest first.
func (s *HistoryService) History(ctx context.Context, botID, ownerID string) (*ChatHistory, error) {
	bot, err := s.ownedBot(ctx, botID, ownerID)
	if err != nil {
		return nil, err
	}
	recs, err := s.records.ListChatRecords(ctx, botID, false, 0)
	if err != nil {
		return nil, fmt.Errorf("list chat records: %w", err)
	}
	return &ChatHistory{BotName: bot.Name, TotalMessages: len(recs), History: recs}, nil
}

// Export returns every exchange oldest first.
func (s *HistoryService) Export(ctx context.Context, botID, ownerID string) (*ChatExport, error) {
	bot, err := s.ownedBot(ctx, botID, ownerID)
	if err != nil {
		return nil, err
	}
	recs, err := s.records.ListChatRecords(ctx, botID, true, 0)
	if err != nil {
		return nil, fmt.Errorf("list chat records: %w", err)
	}

	convs := make([]Conversation, 0, len(recs))
	for _, r := range recs {
		convs = append(convs, Conversation{Query: r.Query, Response: r.Response, Timestamp: r.Timestamp})
	}
	return &ChatExport{
		Version:       ExportVersion,
		Type:          ChatExportType,
		ExportedAt:    s.now().UTC(),
		BotName:       bot.Name,
		TotalMessages: len(convs),
		Conversations: convs,
	}, nil
}

// Clear deletes all records of the bot and returns how many were removed.
func (s *HistoryService) Clear(ctx context.Context, botID, ownerID string) (int64, error) {
	if _, err := s.ownedBot(ctx, botID, ownerID); err != nil {
		return 0, err
	}
	n, err := s.records.DeleteChatRecordsByBot(ctx, botID)
	if err != nil {
		return 0, fmt.Errorf("clear chat records: %w", err)
	}
	s.logger.Info("chat history cleared", zap.String("bot_id", botID), zap.Int64("deleted", n))
	return n, nil
}

// DeleteRecord removes one record after checking the caller owns its bot.
func (s *HistoryService) DeleteRecord(ctx context.Context, recordID, ownerID string) error {
	rec, err := s.records.GetChatRecord(ctx, recordID)
	if err != nil {
		return fmt.Errorf("lookup chat record: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("%w: chat record", ErrNotFound)
	}

	bot, err := s.bots.GetOwnedBot(ctx, rec.BotID, ownerID)
	if err != nil {
		return fmt.Errorf("lookup bot: %w", err)
	}
	if bot == nil {
		return fmt.Errorf("%w: chat record belongs to another account", ErrForbidden)
	}

	if err := s.records.DeleteChatRecord(ctx, recordID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("%w: chat record", ErrNotFound)
		}
		return fmt.Errorf("delete chat record: %w", err)
	}
	return nil
}

// Analytics runs the three reads concurrently.
func (s *HistoryService) Analytics(ctx context.Context, botID, ownerID string) (*Analytics, error) {
	if _, err := s.ownedBot(ctx, botID, ownerID); err != nil {
		return nil, err
	}

	var out Analytics
	since := s.now().UTC().Add(-analyticsWindow)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.records.CountChatRecords(gctx, botID)
		out.TotalMessages = n
		return err
	})
	g.Go(func() error {
		n, err := s.records.CountChatRecordsSince(gctx, botID, since)
		out.MessagesThisWeek = n
		return err
	})
	g.Go(func() error {
		recs, err := s.records.ListChatRecords(gctx, botID, false, recentChatsLimit)
		out.RecentChats = recs
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}
	return &out, nil
}
