package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	middleware "github.com/markdave123-py/smartbot/internal/api/middlewares"
	"github.com/markdave123-py/smartbot/internal/models"
	"github.com/markdave123-py/smartbot/internal/services"
)

// multipart parts above this size spill to temp files.
const multipartMemory = 8 << 20

type BotHandler struct {
	bots      *services.BotService
	maxUpload int64
	validate  *validator.Validate
	logger    *zap.Logger
}

func NewBotHandler(bots *services.BotService, maxUpload int64, validate *validator.Validate, logger *zap.Logger) *BotHandler {
	return &BotHandler{bots: bots, maxUpload: maxUpload, validate: validate, logger: logger.Named("bots")}
}

type settingsRequest struct {
	Theme          string `json:"theme" validate:"omitempty,oneof=dark light"`
	Position       string `json:"position" validate:"omitempty,oneof=bottom-right bottom-left"`
	WelcomeMessage string `json:"welcome_message" validate:"omitempty,max=500"`
	PrimaryColor   string `json:"primary_color" validate:"omitempty,hexcolor,len=7"`
}

// CreateBot handles the multipart create form for both modes.
func (h *BotHandler) CreateBot(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	// headroom for the text fields around the file
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "upload exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	in := services.CreateBotInput{
		OwnerID:     userID,
		Name:        r.FormValue("botName"),
		Description: r.FormValue("botDescription"),
		Mode:        r.FormValue("mode"),
		Location:    r.FormValue("location"),
	}

	switch in.Mode {
	case models.ModeAutomatic:
		file, header, err := r.FormFile("pdfFile")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "a document file is required")
			return
		}
		defer file.Close()
		if header.Size > h.maxUpload {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "upload exceeds the size limit")
			return
		}
		in.File = file
		in.FileName = filepath.Base(header.Filename)
		in.ContentType = header.Header.Get("Content-Type")
	case models.ModeManual:
		profile, err := profileFromForm(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
			return
		}
		in.Profile = profile
	}

	bot, err := h.bots.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      "Bot created successfully",
		"organization": bot,
	})
}

func profileFromForm(r *http.Request) (models.ContextSource, error) {
	p := models.ContextSource{
		Name:     strings.TrimSpace(r.FormValue("orgName")),
		Website:  strings.TrimSpace(r.FormValue("orgWebsite")),
		Industry: strings.TrimSpace(r.FormValue("orgIndustry")),
		About:    strings.TrimSpace(r.FormValue("orgAbout")),
	}
	lists := []struct {
		field string
		dst   any
	}{
		{"employees", &p.Employees},
		{"products", &p.Products},
		{"services", &p.Services},
	}
	for _, l := range lists {
		raw := strings.TrimSpace(r.FormValue(l.field))
		if raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(raw), l.dst); err != nil {
			return p, fmt.Errorf("%s must be a JSON array", l.field)
		}
	}
	return p, nil
}

func (h *BotHandler) ListBots(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	bots, err := h.bots.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bots)
}

func (h *BotHandler) GetBot(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	bot, err := h.bots.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

func (h *BotHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	cfg, err := h.bots.Settings(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *BotHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var req settingsRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}
	cfg, err := h.bots.UpdateSettings(r.Context(), chi.URLParam(r, "id"), userID, models.WidgetConfig{
		Theme:          req.Theme,
		Position:       req.Position,
		WelcomeMessage: req.WelcomeMessage,
		PrimaryColor:   req.PrimaryColor,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *BotHandler) EmbedCode(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	botID := chi.URLParam(r, "id")
	code, err := h.bots.EmbedCode(r.Context(), botID, userID, baseURL(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"embed_code": code, "bot_id": botID})
}

// DeleteBot soft deletes by default; ?purge=true removes the bot and its data.
func (h *BotHandler) DeleteBot(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	purge := r.URL.Query().Get("purge") == "true"
	if err := h.bots.Delete(r.Context(), chi.URLParam(r, "id"), userID, purge); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Bot deleted successfully"})
}

func (h *BotHandler) DownloadSource(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	rc, src, err := h.bots.OpenSource(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension("." + src.FileType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": src.FileName}))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("source download interrupted", zap.Error(err))
	}
}

func (h *BotHandler) ExportBot(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	exp, err := h.bots.Export(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (h *BotHandler) ImportBot(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	var doc services.BotExport
	if !decodeJSON(w, r, h.validate, &doc) {
		return
	}
	bot, err := h.bots.Import(r.Context(), userID, doc)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      "Bot imported successfully",
		"organization": bot,
	})
}
