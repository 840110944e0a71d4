package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/markdave123-py/smartbot/internal/core"
	"github.com/markdave123-py/smartbot/internal/models"
)

// memStore is an in-memory core.DbClient.
type memStore struct {
	mu      sync.Mutex
	users   map[string]*models.User
	otps    []*models.OTPCode
	bots    map[string]*models.Bot
	widgets map[string]*models.WidgetConfig
	records map[string]*models.ChatRecord

	appendErr error
	getBotErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]*models.User{},
		bots:    map[string]*models.Bot{},
		widgets: map[string]*models.WidgetConfig{},
		records: map[string]*models.ChatRecord{},
	}
}

func (m *memStore) Close() error { return nil }

func (m *memStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return core.ErrDuplicate
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) MarkUserVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.IsVerified = true
	return nil
}

func (m *memStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memStore) CreateOTPCode(_ context.Context, otp *models.OTPCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *otp
	m.otps = append(m.otps, &cp)
	return nil
}

func (m *memStore) ConsumeOTPCode(_ context.Context, userID, otpType, code string, now time.Time) (*models.OTPCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.otps) - 1; i >= 0; i-- {
		o := m.otps[i]
		if o.UserID == userID && o.Type == otpType && o.Code == code && o.ExpiresAt.After(now) {
			m.otps = append(m.otps[:i], m.otps[i+1:]...)
			return o, nil
		}
	}
	return nil, nil
}

func (m *memStore) lastOTP(userID, otpType string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.otps) - 1; i >= 0; i-- {
		if m.otps[i].UserID == userID && m.otps[i].Type == otpType {
			return m.otps[i].Code
		}
	}
	return ""
}

func (m *memStore) CreateBot(_ context.Context, bot *models.Bot, widget *models.WidgetConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := *bot
	w := *widget
	m.bots[bot.ID] = &b
	m.widgets[bot.ID] = &w
	return nil
}

func (m *memStore) GetBotByID(_ context.Context, id string) (*models.Bot, error) {
	if m.getBotErr != nil {
		return nil, m.getBotErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bots[id]; ok && !b.IsDeleted {
		cp := *b
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) GetOwnedBot(ctx context.Context, id, ownerID string) (*models.Bot, error) {
	b, err := m.GetBotByID(ctx, id)
	if err != nil || b == nil || b.UserID != ownerID {
		return nil, err
	}
	return b, nil
}

func (m *memStore) ListBotsByOwner(_ context.Context, ownerID string) ([]models.Bot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Bot{}
	for _, b := range m.bots {
		if b.UserID == ownerID && !b.IsDeleted {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) CountBotsByOwner(ctx context.Context, ownerID string) (int, error) {
	bots, err := m.ListBotsByOwner(ctx, ownerID)
	return len(bots), err
}

func (m *memStore) SoftDeleteBot(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[id]
	if !ok || b.UserID != ownerID || b.IsDeleted {
		return core.ErrNotFound
	}
	b.IsDeleted = true
	return nil
}

func (m *memStore) HardDeleteBot(_ context.Context, id, ownerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[id]
	if !ok || b.UserID != ownerID {
		return "", core.ErrNotFound
	}
	for rid, r := range m.records {
		if r.BotID == id {
			delete(m.records, rid)
		}
	}
	delete(m.widgets, id)
	delete(m.bots, id)
	return b.Source.StorageKey, nil
}

func (m *memStore) GetWidgetConfig(_ context.Context, botID string) (*models.WidgetConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.widgets[botID]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) UpsertWidgetConfig(_ context.Context, w *models.WidgetConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.widgets[w.BotID] = &cp
	return nil
}

func (m *memStore) AppendChatRecord(_ context.Context, rec *models.ChatRecord) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.ID] = &cp
	if b, ok := m.bots[rec.BotID]; ok {
		b.MessageCount++
	}
	return nil
}

func (m *memStore) ListChatRecords(_ context.Context, botID string, ascending bool, limit int) ([]models.ChatRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ChatRecord{}
	for _, r := range m.records {
		if r.BotID == botID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CountChatRecords(ctx context.Context, botID string) (int, error) {
	recs, err := m.ListChatRecords(ctx, botID, true, 0)
	return len(recs), err
}

func (m *memStore) CountChatRecordsSince(ctx context.Context, botID string, since time.Time) (int, error) {
	recs, err := m.ListChatRecords(ctx, botID, true, 0)
	n := 0
	for _, r := range recs {
		if !r.Timestamp.Before(since) {
			n++
		}
	}
	return n, err
}

func (m *memStore) DeleteChatRecordsByBot(_ context.Context, botID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.records {
		if r.BotID == botID {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetChatRecord(_ context.Context, id string) (*models.ChatRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) DeleteChatRecord(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return core.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memStore) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

var _ core.DbClient = (*memStore)(nil)

// fakeCompletion records calls and returns a canned answer or error.
type fakeCompletion struct {
	mu       sync.Mutex
	answer   string
	err      error
	calls    int
	messages []core.Message
	ctxErr   error
}

func (f *fakeCompletion) Complete(ctx context.Context, _ string, messages []core.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = messages
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeCompletion) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract(_ context.Context, r io.Reader, filename string) (*core.ExtractedText, error) {
	if f.err != nil {
		return nil, f.err
	}
	_, _ = io.Copy(io.Discard, r)
	return &core.ExtractedText{Text: f.text, FileType: "pdf"}, nil
}

// memObjects is an in-memory core.ObjectClient.
type memObjects struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newMemObjects() *memObjects { return &memObjects{objects: map[string][]byte{}} }

func (o *memObjects) UploadFile(_ context.Context, key string, data io.Reader, _ string) (string, error) {
	if o.uploadErr != nil {
		return "", o.uploadErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = b
	return "https://bucket.example/" + key, nil
}

func (o *memObjects) DeleteFile(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

func (o *memObjects) GetObjectReader(_ context.Context, key string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}
