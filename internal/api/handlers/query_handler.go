package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/markdave123-py/smartbot/internal/api/middlewares"
	"github.com/markdave123-py/smartbot/internal/services"
)

// Answerer runs the query pipeline.
type Answerer interface {
	Answer(ctx context.Context, req services.QueryRequest) (*services.QueryResult, error)
}

type QueryHandler struct {
	queries Answerer
	logger  *zap.Logger
}

func NewQueryHandler(queries Answerer, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{queries: queries, logger: logger.Named("query")}
}

type queryRequest struct {
	Query string `json:"query"`
}

// Query answers a question for a dashboard user or an anonymous widget visitor.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	botID := chi.URLParam(r, "bot_id")

	var body queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
		return
	}

	req := services.QueryRequest{BotID: botID, Query: body.Query, SourceIP: clientIP(r)}
	if userID, ok := middleware.UserIDFromContext(r.Context()); ok {
		req.CallerID = &userID
	}

	res, err := h.queries.Answer(r.Context(), req)
	if err != nil {
		h.writeQueryError(w, botID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type queryFailure struct {
	status int
	code   string
	msg    string
}

var queryFailures = map[services.Reason]queryFailure{
	services.ReasonMissingQuery:       {http.StatusBadRequest, "MISSING_QUERY", "Query is required"},
	services.ReasonBotNotFound:        {http.StatusNotFound, "BOT_NOT_FOUND", "Bot not found"},
	services.ReasonNoContextData:      {http.StatusInternalServerError, "NO_DATA", "Bot data not available. Please recreate the bot."},
	services.ReasonServiceUnavailable: {http.StatusInternalServerError, "AI_NOT_CONFIGURED", "AI service not configured"},
	services.ReasonUpstreamError:      {http.StatusInternalServerError, "UPSTREAM_ERROR", "AI service error, please try again later"},
	services.ReasonTimeout:            {http.StatusInternalServerError, "UPSTREAM_TIMEOUT", "AI service timed out, please try again later"},
}

func (h *QueryHandler) writeQueryError(w http.ResponseWriter, botID string, err error) {
	var qe *services.QueryError
	if !errors.As(err, &qe) {
		h.logger.Error("query failed", zap.String("bot_id", botID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
		return
	}

	f, ok := queryFailures[qe.Reason]
	if !ok {
		f = queryFailure{http.StatusInternalServerError, "INTERNAL", "internal server error"}
	}
	if qe.Kind() == services.KindServer {
		h.logger.Error("query failed",
			zap.String("bot_id", botID),
			zap.String("stage", string(qe.Stage)),
			zap.String("reason", string(qe.Reason)),
			zap.Error(qe.Err),
		)
	}
	writeError(w, f.status, f.code, f.msg)
}
