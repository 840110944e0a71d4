package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/smartbot/internal/config"
	"github.com/markdave123-py/smartbot/internal/core"
	"github.com/markdave123-py/smartbot/internal/models"
)

const uniqueViolation = "23505"

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// NewFromDB wraps an already opened handle without bootstrapping it.
func NewFromDB(db *sql.DB) *DatabaseClient {
	return &DatabaseClient{db: db}
}

// buildDSN appends CA verification params when a root certificate is provided.
func buildDSN(databaseURL, sslCertPath string) (string, error) {
	if sslCertPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(sslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", sslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Implementing the db interface for users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, email, password_hash, is_verified, tier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.Email, user.PasswordHash, user.IsVerified, user.Tier, user.CreatedAt)
	if isUniqueViolation(err) {
		return core.ErrDuplicate
	}
	return err
}

const userColumns = `id, email, password_hash, is_verified, tier, created_at`

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (c *DatabaseClient) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return c.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (c *DatabaseClient) getUser(ctx context.Context, q string, arg string) (*models.User, error) {
	var u models.User
	err := c.db.QueryRowContext(ctx, q, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.IsVerified, &u.Tier, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *DatabaseClient) MarkUserVerified(ctx context.Context, id string) error {
	return c.execOne(ctx, `UPDATE users SET is_verified = TRUE WHERE id = $1`, id)
}

func (c *DatabaseClient) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return c.execOne(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
}

func (c *DatabaseClient) CreateOTPCode(ctx context.Context, otp *models.OTPCode) error {
	if otp == nil {
		return errors.New("nil otp code")
	}
	const q = `
		INSERT INTO otp_codes (id, user_id, code, otp_type, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := c.db.ExecContext(ctx, q, otp.ID, otp.UserID, otp.Code, otp.Type, otp.ExpiresAt, otp.CreatedAt)
	return err
}

func (c *DatabaseClient) ConsumeOTPCode(ctx context.Context, userID, otpType, code string, now time.Time) (*models.OTPCode, error) {
	const q = `
		DELETE FROM otp_codes
		WHERE id = (
			SELECT id FROM otp_codes
			WHERE user_id = $1 AND otp_type = $2 AND code = $3 AND expires_at > $4
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING id, user_id, code, otp_type, expires_at, created_at
	`
	var o models.OTPCode
	err := c.db.QueryRowContext(ctx, q, userID, otpType, code, now).Scan(
		&o.ID, &o.UserID, &o.Code, &o.Type, &o.ExpiresAt, &o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Implementing the db interface for bots and widget configs

func (c *DatabaseClient) CreateBot(ctx context.Context, bot *models.Bot, widget *models.WidgetConfig) error {
	if bot == nil || widget == nil {
		return errors.New("nil bot or widget config")
	}
	data, err := json.Marshal(bot.Source)
	if err != nil {
		return fmt.Errorf("encode bot data: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	const insertBot = `
		INSERT INTO organizations
			(id, user_id, name, description, mode, data, message_count, location, is_deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9)
	`
	if _, err := tx.ExecContext(ctx, insertBot,
		bot.ID, bot.UserID, bot.Name, bot.Description, bot.Mode, string(data), bot.MessageCount, bot.Location, bot.CreatedAt,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert bot: %w", err)
	}

	const insertWidget = `
		INSERT INTO widget_configs (id, organization_id, theme, position, welcome_message, primary_color)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, insertWidget,
		widget.ID, bot.ID, widget.Theme, widget.Position, widget.WelcomeMessage, widget.PrimaryColor,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert widget config: %w", err)
	}
	return tx.Commit()
}

const botColumns = `id, user_id, name, description, mode, data, message_count, location, is_deleted, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBot(row rowScanner) (*models.Bot, error) {
	var (
		b    models.Bot
		data []byte
	)
	if err := row.Scan(
		&b.ID, &b.UserID, &b.Name, &b.Description, &b.Mode, &data, &b.MessageCount, &b.Location, &b.IsDeleted, &b.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &b.Source); err != nil {
			return nil, fmt.Errorf("decode data of bot %s: %w", b.ID, err)
		}
	}
	return &b, nil
}

func (c *DatabaseClient) GetBotByID(ctx context.Context, id string) (*models.Bot, error) {
	q := `SELECT ` + botColumns + ` FROM organizations WHERE id = $1 AND is_deleted = FALSE`
	b, err := scanBot(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (c *DatabaseClient) GetOwnedBot(ctx context.Context, id, ownerID string) (*models.Bot, error) {
	q := `SELECT ` + botColumns + ` FROM organizations WHERE id = $1 AND user_id = $2 AND is_deleted = FALSE`
	b, err := scanBot(c.db.QueryRowContext(ctx, q, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (c *DatabaseClient) ListBotsByOwner(ctx context.Context, ownerID string) ([]models.Bot, error) {
	q := `SELECT ` + botColumns + ` FROM organizations WHERE user_id = $1 AND is_deleted = FALSE ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Bot{}
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountBotsByOwner(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM organizations WHERE user_id = $1 AND is_deleted = FALSE`, ownerID).Scan(&n)
	return n, err
}

// SoftDeleteBot only flags the bot; chat records and widget config stay intact.
func (c *DatabaseClient) SoftDeleteBot(ctx context.Context, id, ownerID string) error {
	return c.execOne(ctx,
		`UPDATE organizations SET is_deleted = TRUE WHERE id = $1 AND user_id = $2 AND is_deleted = FALSE`,
		id, ownerID)
}

// HardDeleteBot also purges soft-deleted bots. It returns the storage key of
// the archived source document, empty when there is none.
func (c *DatabaseClient) HardDeleteBot(ctx context.Context, id, ownerID string) (string, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM organizations WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, ownerID).Scan(&raw)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return "", core.ErrNotFound
		}
		return "", err
	}
	var src models.ContextSource
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &src); err != nil {
			_ = tx.Rollback()
			return "", fmt.Errorf("decode bot data: %w", err)
		}
	}

	steps := []struct {
		name string
		q    string
	}{
		{"chat records", `DELETE FROM chat_history WHERE organization_id = $1`},
		{"widget config", `DELETE FROM widget_configs WHERE organization_id = $1`},
		{"bot", `DELETE FROM organizations WHERE id = $1`},
	}
	for _, s := range steps {
		if _, err := tx.ExecContext(ctx, s.q, id); err != nil {
			_ = tx.Rollback()
			return "", fmt.Errorf("delete %s: %w", s.name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return src.StorageKey, nil
}

func (c *DatabaseClient) GetWidgetConfig(ctx context.Context, botID string) (*models.WidgetConfig, error) {
	const q = `
		SELECT id, organization_id, theme, position, welcome_message, primary_color
		FROM widget_configs WHERE organization_id = $1
	`
	var w models.WidgetConfig
	err := c.db.QueryRowContext(ctx, q, botID).Scan(
		&w.ID, &w.BotID, &w.Theme, &w.Position, &w.WelcomeMessage, &w.PrimaryColor,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *DatabaseClient) UpsertWidgetConfig(ctx context.Context, w *models.WidgetConfig) error {
	if w == nil {
		return errors.New("nil widget config")
	}
	const q = `
		INSERT INTO widget_configs (id, organization_id, theme, position, welcome_message, primary_color)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (organization_id) DO UPDATE SET
			theme = EXCLUDED.theme,
			position = EXCLUDED.position,
			welcome_message = EXCLUDED.welcome_message,
			primary_color = EXCLUDED.primary_color
	`
	_, err := c.db.ExecContext(ctx, q, w.ID, w.BotID, w.Theme, w.Position, w.WelcomeMessage, w.PrimaryColor)
	return err
}

// Implementing the chat record store

func (c *DatabaseClient) AppendChatRecord(ctx context.Context, rec *models.ChatRecord) error {
	if rec == nil {
		return errors.New("nil chat record")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	const insert = `
		INSERT INTO chat_history (id, organization_id, user_id, query, response, source_ip, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.ExecContext(ctx, insert,
		rec.ID, rec.BotID, nullString(rec.UserID), rec.Query, rec.Response, rec.SourceIP, rec.Timestamp,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert chat record: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE organizations SET message_count = message_count + 1 WHERE id = $1`, rec.BotID,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("increment message count: %w", err)
	}
	return tx.Commit()
}

const chatColumns = `id, organization_id, user_id, query, response, source_ip, timestamp`

func scanChat(row rowScanner) (*models.ChatRecord, error) {
	var (
		r      models.ChatRecord
		userID sql.NullString
		ip     sql.NullString
	)
	if err := row.Scan(&r.ID, &r.BotID, &userID, &r.Query, &r.Response, &ip, &r.Timestamp); err != nil {
		return nil, err
	}
	if userID.Valid {
		r.UserID = &userID.String
	}
	r.SourceIP = ip.String
	return &r, nil
}

// ListChatRecords returns the bot's records by timestamp. limit <= 0 means all.
func (c *DatabaseClient) ListChatRecords(ctx context.Context, botID string, ascending bool, limit int) ([]models.ChatRecord, error) {
	order := "DESC"
	if ascending {
		order = "ASC"
	}
	q := `SELECT ` + chatColumns + ` FROM chat_history WHERE organization_id = $1 ORDER BY timestamp ` + order + ` LIMIT $2`

	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := c.db.QueryContext(ctx, q, botID, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ChatRecord{}
	for rows.Next() {
		r, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountChatRecords(ctx context.Context, botID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_history WHERE organization_id = $1`, botID).Scan(&n)
	return n, err
}

func (c *DatabaseClient) CountChatRecordsSince(ctx context.Context, botID string, since time.Time) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_history WHERE organization_id = $1 AND timestamp >= $2`, botID, since).Scan(&n)
	return n, err
}

func (c *DatabaseClient) DeleteChatRecordsByBot(ctx context.Context, botID string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM chat_history WHERE organization_id = $1`, botID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *DatabaseClient) GetChatRecord(ctx context.Context, id string) (*models.ChatRecord, error) {
	r, err := scanChat(c.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chat_history WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (c *DatabaseClient) DeleteChatRecord(ctx context.Context, id string) error {
	return c.execOne(ctx, `DELETE FROM chat_history WHERE id = $1`, id)
}

// execOne runs a mutation and reports core.ErrNotFound when no row matched.
func (c *DatabaseClient) execOne(ctx context.Context, q string, args ...any) error {
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

var _ core.DbClient = (*DatabaseClient)(nil)
