package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markdave123-py/smartbot/internal/core"
	"github.com/markdave123-py/smartbot/internal/core/botcontext"
	"github.com/markdave123-py/smartbot/internal/core/prompt"
	"github.com/markdave123-py/smartbot/internal/models"
)

// Stage is the last state a query reached.
type Stage string

const (
	StageReceived      Stage = "received"
	StageValidated     Stage = "validated"
	StageContextLoaded Stage = "context_loaded"
	StageAnswered      Stage = "answered"
	StagePersisted     Stage = "persisted"
	StageResponded     Stage = "responded"
)

type Reason string

const (
	ReasonMissingQuery       Reason = "missing_query"
	ReasonBotNotFound        Reason = "bot_not_found"
	ReasonNoContextData      Reason = "no_context_data"
	ReasonServiceUnavailable Reason = "service_unavailable"
	ReasonUpstreamError      Reason = "upstream_error"
	ReasonTimeout            Reason = "timeout"
	ReasonStoreError         Reason = "store_error"
)

type ErrorKind int

const (
	KindClient ErrorKind = iota + 1
	KindServer
)

// QueryError reports where a query stopped and why.
type QueryError struct {
	Stage  Stage
	Reason Reason
	Err    error
}

func (e *QueryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("query %s at %s", e.Reason, e.Stage)
	}
	return fmt.Sprintf("query %s at %s: %v", e.Reason, e.Stage, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Kind is KindClient for rejected input and KindServer for everything else.
func (e *QueryError) Kind() ErrorKind {
	switch e.Reason {
	case ReasonMissingQuery, ReasonBotNotFound:
		return KindClient
	default:
		return KindServer
	}
}

type QueryRequest struct {
	BotID    string
	Query    string
	CallerID *string // nil for anonymous widget callers
	SourceIP string
}

type QueryResult struct {
	Response  string    `json:"response"`
	ChatID    string    `json:"chat_id"`
	Timestamp time.Time `json:"timestamp"`
}

// BotReader is the single bot lookup a query needs.
type BotReader interface {
	GetBotByID(ctx context.Context, id string) (*models.Bot, error)
}

type QueryService struct {
	bots            BotReader
	records         core.ChatRecordStore
	completion      core.CompletionClient
	model           string
	maxContextRunes int
	now             func() time.Time
	newID           func() string
	logger          *zap.Logger
}

func NewQueryService(bots BotReader, records core.ChatRecordStore, completion core.CompletionClient, model string, maxContextRunes int, logger *zap.Logger) *QueryService {
	return &QueryService{
		bots:            bots,
		records:         records,
		completion:      completion,
		model:           model,
		maxContextRunes: maxContextRunes,
		now:             time.Now,
		newID:           uuid.NewString,
		logger:          logger.Named("query"),
	}
}

// Answer runs one question through validation, context loading, completion
// and persistence. Once the completion call starts, caller cancellation no
// longer applies. A failed write after a successful answer is logged and the
// answer is still returned, with an empty ChatID.
func (s *QueryService) Answer(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, &QueryError{Stage: StageReceived, Reason: ReasonMissingQuery}
	}

	bot, err := s.bots.GetBotByID(ctx, req.BotID)
	if err != nil {
		return nil, &QueryError{Stage: StageReceived, Reason: ReasonStoreError, Err: err}
	}
	if bot == nil {
		return nil, &QueryError{Stage: StageReceived, Reason: ReasonBotNotFound}
	}

	blob := botcontext.Materialize(bot.Mode, bot.Source)
	if strings.TrimSpace(blob) == "" {
		return nil, &QueryError{Stage: StageValidated, Reason: ReasonNoContextData}
	}
	blob = s.truncate(bot.ID, blob)

	detached := context.WithoutCancel(ctx)
	answer, err := s.completion.Complete(detached, s.model, prompt.Build(blob, req.Query))
	if err != nil {
		return nil, &QueryError{Stage: StageContextLoaded, Reason: completionReason(err), Err: err}
	}

	rec := &models.ChatRecord{
		ID:        s.newID(),
		BotID:     bot.ID,
		UserID:    req.CallerID,
		Query:     req.Query,
		Response:  answer,
		SourceIP:  req.SourceIP,
		Timestamp: s.now().UTC(),
	}
	chatID := rec.ID
	if err := s.records.AppendChatRecord(detached, rec); err != nil {
		s.logger.Error("chat record not persisted; answer still returned",
			zap.String("bot_id", bot.ID),
			zap.String("chat_id", rec.ID),
			zap.Error(err),
		)
		chatID = ""
	}

	return &QueryResult{Response: answer, ChatID: chatID, Timestamp: rec.Timestamp}, nil
}

// truncate cuts the blob to maxContextRunes when a limit is configured.
func (s *QueryService) truncate(botID, blob string) string {
	if s.maxContextRunes <= 0 {
		return blob
	}
	n := utf8.RuneCountInString(blob)
	if n <= s.maxContextRunes {
		return blob
	}
	s.logger.Warn("context truncated",
		zap.String("bot_id", botID),
		zap.Int("runes", n),
		zap.Int("limit", s.maxContextRunes),
	)
	return string([]rune(blob)[:s.maxContextRunes])
}

func completionReason(err error) Reason {
	switch {
	case errors.Is(err, core.ErrServiceUnavailable):
		return ReasonServiceUnavailable
	case errors.Is(err, core.ErrTimeout):
		return ReasonTimeout
	default:
		return ReasonUpstreamError
	}
}
