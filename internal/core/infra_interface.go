package core

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/markdave123-py/smartbot/internal/models"
)

var (
	// ErrNotFound is returned by mutations that matched no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate record")
)

// DbClient defines all persistence operations the services need.
// Lookups return (nil, nil) when the row does not exist.
type DbClient interface {
	AccountStore
	BotStore
	ChatRecordStore

	Close() error
}

type AccountStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	MarkUserVerified(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	CreateOTPCode(ctx context.Context, otp *models.OTPCode) error
	// ConsumeOTPCode deletes and returns the newest unexpired code matching the triple.
	ConsumeOTPCode(ctx context.Context, userID, otpType, code string, now time.Time) (*models.OTPCode, error)
}

type BotStore interface {
	// CreateBot inserts the bot and its widget config in one transaction.
	CreateBot(ctx context.Context, bot *models.Bot, widget *models.WidgetConfig) error
	// GetBotByID ignores ownership and returns nil for soft-deleted bots.
	GetBotByID(ctx context.Context, id string) (*models.Bot, error)
	GetOwnedBot(ctx context.Context, id, ownerID string) (*models.Bot, error)
	ListBotsByOwner(ctx context.Context, ownerID string) ([]models.Bot, error)
	CountBotsByOwner(ctx context.Context, ownerID string) (int, error)
	SoftDeleteBot(ctx context.Context, id, ownerID string) error
	// HardDeleteBot removes chat records, widget config and the bot in one
	// transaction, soft-deleted or not, and returns the archived source key.
	HardDeleteBot(ctx context.Context, id, ownerID string) (string, error)

	GetWidgetConfig(ctx context.Context, botID string) (*models.WidgetConfig, error)
	UpsertWidgetConfig(ctx context.Context, cfg *models.WidgetConfig) error
}

// ChatRecordStore is the append-only exchange log. Every operation is scoped by bot id.
type ChatRecordStore interface {
	// AppendChatRecord inserts the record and increments the bot's message_count atomically.
	AppendChatRecord(ctx context.Context, rec *models.ChatRecord) error
	ListChatRecords(ctx context.Context, botID string, ascending bool, limit int) ([]models.ChatRecord, error)
	CountChatRecords(ctx context.Context, botID string) (int, error)
	CountChatRecordsSince(ctx context.Context, botID string, since time.Time) (int, error)
	DeleteChatRecordsByBot(ctx context.Context, botID string) (int64, error)
	GetChatRecord(ctx context.Context, id string) (*models.ChatRecord, error)
	DeleteChatRecord(ctx context.Context, id string) error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, key string) error
	GetObjectReader(ctx context.Context, key string) (io.ReadCloser, error)
}
