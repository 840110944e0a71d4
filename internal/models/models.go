package models

import (
	"time"
)

const (
	TierFree = "free"
	TierPro  = "pro"

	ModeAutomatic = "automatic"
	ModeManual    = "manual"

	OTPVerify = "verify"
	OTPReset  = "reset"
)

// User represents an account that owns bots.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsVerified   bool      `db:"is_verified" json:"is_verified"`
	Tier         string    `db:"tier" json:"tier"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// OTPCode is a single-use code for email verification or password reset.
type OTPCode struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Code      string    `db:"code" json:"-"`
	Type      string    `db:"otp_type" json:"type"` // verify | reset
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Bot is a configured chatbot ("organization") owned by one user.
type Bot struct {
	ID           string        `db:"id" json:"id"`
	UserID       string        `db:"user_id" json:"user_id"`
	Name         string        `db:"name" json:"name"`
	Description  string        `db:"description" json:"description"`
	Mode         string        `db:"mode" json:"mode"` // automatic | manual
	Source       ContextSource `db:"data" json:"data"`
	MessageCount int           `db:"message_count" json:"message_count"`
	Location     string        `db:"location" json:"location"`
	IsDeleted    bool          `db:"is_deleted" json:"-"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// ContextSource is the stored knowledge of a bot. Automatic bots fill the
// document fields, manual bots fill the profile fields. Every field is optional.
type ContextSource struct {
	FileName   string `json:"file_name,omitempty"`
	FileType   string `json:"file_type,omitempty"`
	StorageKey string `json:"storage_key,omitempty"`
	Content    string `json:"content,omitempty"`

	Name      string     `json:"name,omitempty"`
	Website   string     `json:"website,omitempty"`
	Industry  string     `json:"industry,omitempty"`
	About     string     `json:"about,omitempty"`
	Employees []Employee `json:"employees,omitempty"`
	Products  []Offering `json:"products,omitempty"`
	Services  []Offering `json:"services,omitempty"`
}

type Employee struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Offering is a product or a service line of a manual profile.
type Offering struct {
	Name    string `json:"name"`
	Details string `json:"details"`
}

// WidgetConfig holds the display settings of a bot's embeddable widget.
type WidgetConfig struct {
	ID             string `db:"id" json:"id"`
	BotID          string `db:"organization_id" json:"organization_id"`
	Theme          string `db:"theme" json:"theme"`       // dark | light
	Position       string `db:"position" json:"position"` // bottom-right | bottom-left
	WelcomeMessage string `db:"welcome_message" json:"welcome_message"`
	PrimaryColor   string `db:"primary_color" json:"primary_color"`
}

// DefaultWidgetConfig returns the settings a new bot starts with.
func DefaultWidgetConfig(id, botID string) *WidgetConfig {
	return &WidgetConfig{
		ID:             id,
		BotID:          botID,
		Theme:          "dark",
		Position:       "bottom-right",
		WelcomeMessage: "Hello! How can I help you today?",
		PrimaryColor:   "#8B5CF6",
	}
}

// ChatRecord is one persisted question/answer exchange. Immutable once written.
type ChatRecord struct {
	ID        string    `db:"id" json:"id"`
	BotID     string    `db:"organization_id" json:"organization_id"`
	UserID    *string   `db:"user_id" json:"-"` // nil for anonymous widget callers
	Query     string    `db:"query" json:"query"`
	Response  string    `db:"response" json:"response"`
	SourceIP  string    `db:"source_ip" json:"-"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}
