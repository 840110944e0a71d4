package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/smartbot/internal/core/ingestion_engine"
	"github.com/markdave123-py/smartbot/internal/models"
)

func newBotFixture(t *testing.T, tier string) (*BotService, *memStore, *memObjects) {
	t.Helper()
	store := newMemStore()
	objects := newMemObjects()
	require.NoError(t, store.CreateUser(context.Background(), &models.User{ID: "u1", Email: "a@b.co", Tier: tier, IsVerified: true}))
	svc := NewBotService(store, objects, fakeExtractor{text: "Acme sells anvils."}, 2, zap.NewNop())
	return svc, store, objects
}

func manualInput(name string) CreateBotInput {
	return CreateBotInput{
		OwnerID: "u1", Name: name, Description: "support bot", Mode: models.ModeManual,
		Profile: models.ContextSource{Name: "Acme", Employees: []models.Employee{{Name: "Jo", Role: "CEO"}}},
	}
}

func TestCreate_Manual(t *testing.T) {
	svc, store, _ := newBotFixture(t, models.TierFree)
	ctx := context.Background()

	bot, err := svc.Create(ctx, manualInput("Acme Bot"))
	require.NoError(t, err)
	assert.Equal(t, "Global", bot.Location)
	assert.Equal(t, "Acme", bot.Source.Name)

	widget, err := store.GetWidgetConfig(ctx, bot.ID)
	require.NoError(t, err)
	require.NotNil(t, widget)
	assert.Equal(t, "dark", widget.Theme)
}

func TestCreate_Automatic(t *testing.T) {
	svc, _, objects := newBotFixture(t, models.TierFree)

	bot, err := svc.Create(context.Background(), CreateBotInput{
		OwnerID: "u1", Name: "Doc Bot", Description: "d", Mode: models.ModeAutomatic,
		FileName: "Acme Profile.pdf", ContentType: "application/pdf", File: strings.NewReader("%PDF-raw"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme sells anvils.", bot.Source.Content)
	assert.Equal(t, "Acme Profile.pdf", bot.Source.FileName)
	assert.Equal(t, "users/u1/bots/"+bot.ID+"/Acme_Profile.pdf", bot.Source.StorageKey)
	assert.Equal(t, []byte("%PDF-raw"), objects.objects[bot.Source.StorageKey])

	rc, src, err := svc.OpenSource(context.Background(), bot.ID, "u1")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "%PDF-raw", string(body))
	assert.Equal(t, "Acme Profile.pdf", src.FileName)
}

func TestCreate_ArchiveFailureIsNotFatal(t *testing.T) {
	svc, _, objects := newBotFixture(t, models.TierFree)
	objects.uploadErr = errors.New("s3 down")

	bot, err := svc.Create(context.Background(), CreateBotInput{
		OwnerID: "u1", Name: "Doc Bot", Description: "d", Mode: models.ModeAutomatic,
		FileName: "a.docx", File: strings.NewReader("raw"),
	})
	require.NoError(t, err)
	assert.Empty(t, bot.Source.StorageKey)
	assert.NotEmpty(t, bot.Source.Content)

	_, _, err = svc.OpenSource(context.Background(), bot.ID, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_Rejections(t *testing.T) {
	svc, _, _ := newBotFixture(t, models.TierFree)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateBotInput{OwnerID: "u1", Name: "x", Description: "d", Mode: "hybrid"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, CreateBotInput{OwnerID: "u1", Name: "", Description: "d", Mode: models.ModeManual})
	assert.ErrorIs(t, err, ErrInvalidInput)

	in := manualInput("x")
	in.Profile.Name = " "
	_, err = svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, CreateBotInput{
		OwnerID: "u1", Name: "x", Description: "d", Mode: models.ModeAutomatic,
		FileName: "notes.txt", File: strings.NewReader("hi"),
	})
	assert.ErrorIs(t, err, ingestion_engine.ErrUnsupportedFormat)

	svc.extractor = fakeExtractor{err: ingestion_engine.ErrExtraction}
	_, err = svc.Create(ctx, CreateBotInput{
		OwnerID: "u1", Name: "x", Description: "d", Mode: models.ModeAutomatic,
		FileName: "broken.pdf", File: strings.NewReader("hi"),
	})
	assert.ErrorIs(t, err, ingestion_engine.ErrExtraction)
}

func TestCreate_TierLimit(t *testing.T) {
	ctx := context.Background()

	svc, store, _ := newBotFixture(t, models.TierFree)
	for i := 0; i < 2; i++ {
		_, err := svc.Create(ctx, manualInput("bot"))
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, manualInput("one too many"))
	assert.ErrorIs(t, err, ErrTierLimit)

	// soft-deleted bots free a slot
	bots, _ := store.ListBotsByOwner(ctx, "u1")
	require.NoError(t, svc.Delete(ctx, bots[0].ID, "u1", false))
	_, err = svc.Create(ctx, manualInput("replacement"))
	assert.NoError(t, err)

	pro, _, _ := newBotFixture(t, models.TierPro)
	for i := 0; i < 5; i++ {
		_, err := pro.Create(ctx, manualInput("bot"))
		require.NoError(t, err)
	}
}

func TestSettingsAndEmbed(t *testing.T) {
	svc, store, _ := newBotFixture(t, models.TierFree)
	ctx := context.Background()
	bot, err := svc.Create(ctx, manualInput("Acme"))
	require.NoError(t, err)

	// a missing row is recreated with defaults
	delete(store.widgets, bot.ID)
	cfg, err := svc.Settings(ctx, bot.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "bottom-right", cfg.Position)

	cfg, err = svc.UpdateSettings(ctx, bot.ID, "u1", models.WidgetConfig{Theme: "light", WelcomeMessage: `Hi "there"`})
	require.NoError(t, err)
	assert.Equal(t, "light", cfg.Theme)
	assert.Equal(t, "#8B5CF6", cfg.PrimaryColor)

	code, err := svc.EmbedCode(ctx, bot.ID, "u1", "https://bots.example.com/")
	require.NoError(t, err)
	assert.Contains(t, code, `src="https://bots.example.com/widget.js"`)
	assert.Contains(t, code, `data-bot-id="`+bot.ID+`"`)
	assert.Contains(t, code, `data-welcome="Hi &#34;there&#34;"`)

	_, err = svc.Settings(ctx, bot.ID, "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	svc, store, objects := newBotFixture(t, models.TierPro)
	ctx := context.Background()

	soft, err := svc.Create(ctx, manualInput("soft"))
	require.NoError(t, err)
	require.NoError(t, store.AppendChatRecord(ctx, &models.ChatRecord{ID: "c1", BotID: soft.ID, Timestamp: time.Now()}))

	assert.ErrorIs(t, svc.Delete(ctx, soft.ID, "intruder", false), ErrNotFound)
	require.NoError(t, svc.Delete(ctx, soft.ID, "u1", false))
	_, err = svc.Get(ctx, soft.ID, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, store.recordCount(), "soft delete keeps chat records")

	hard, err := svc.Create(ctx, CreateBotInput{
		OwnerID: "u1", Name: "hard", Description: "d", Mode: models.ModeAutomatic,
		FileName: "a.pdf", File: strings.NewReader("raw"),
	})
	require.NoError(t, err)
	require.NoError(t, store.AppendChatRecord(ctx, &models.ChatRecord{ID: "c2", BotID: hard.ID, Timestamp: time.Now()}))

	require.NoError(t, svc.Delete(ctx, hard.ID, "u1", true))
	rec, _ := store.GetChatRecord(ctx, "c2")
	assert.Nil(t, rec)
	w, _ := store.GetWidgetConfig(ctx, hard.ID)
	assert.Nil(t, w)
	assert.NotContains(t, objects.objects, hard.Source.StorageKey)

	assert.ErrorIs(t, svc.Delete(ctx, hard.ID, "u1", true), ErrNotFound)
}

func TestDelete_PurgeAfterSoftDelete(t *testing.T) {
	svc, store, objects := newBotFixture(t, models.TierPro)
	ctx := context.Background()

	bot, err := svc.Create(ctx, CreateBotInput{
		OwnerID: "u1", Name: "doc", Description: "d", Mode: models.ModeAutomatic,
		FileName: "a.pdf", File: strings.NewReader("raw"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, bot.Source.StorageKey)
	require.Contains(t, objects.objects, bot.Source.StorageKey)
	require.NoError(t, store.AppendChatRecord(ctx, &models.ChatRecord{ID: "c1", BotID: bot.ID, Timestamp: time.Now()}))

	require.NoError(t, svc.Delete(ctx, bot.ID, "u1", false))
	require.NoError(t, svc.Delete(ctx, bot.ID, "u1", true))

	assert.NotContains(t, objects.objects, bot.Source.StorageKey)
	assert.Equal(t, 0, store.recordCount())
	w, _ := store.GetWidgetConfig(ctx, bot.ID)
	assert.Nil(t, w)
}

func TestExportImport(t *testing.T) {
	svc, _, _ := newBotFixture(t, models.TierFree)
	ctx := context.Background()
	bot, err := svc.Create(ctx, CreateBotInput{
		OwnerID: "u1", Name: "Doc", Description: "d", Mode: models.ModeAutomatic,
		FileName: "a.pdf", File: strings.NewReader("raw"),
	})
	require.NoError(t, err)

	exp, err := svc.Export(ctx, bot.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, BotExportType, exp.Type)
	assert.Equal(t, ExportVersion, exp.Version)
	assert.Empty(t, exp.Bot.Data.StorageKey)
	assert.Equal(t, "Acme sells anvils.", exp.Bot.Data.Content)

	exp.Bot.Location = ""
	imported, err := svc.Import(ctx, "u1", *exp)
	require.NoError(t, err)
	assert.NotEqual(t, bot.ID, imported.ID)
	assert.Equal(t, "Imported", imported.Location)
	assert.Equal(t, exp.Bot.Data.Content, imported.Source.Content)

	_, err = svc.Import(ctx, "u1", *exp)
	assert.ErrorIs(t, err, ErrTierLimit)

	exp.Type = "something_else"
	_, err = svc.Import(ctx, "u1", *exp)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
