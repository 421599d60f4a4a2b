package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/cam3ron2/issue-relay/internal/relay"
	"go.uber.org/zap"
)

const maxRequestBodyBytes = 1 << 20

// RelayService is the request flow behind the API endpoints.
type RelayService interface {
	IssueForecast(ctx context.Context, repo string) (relay.ForecastReport, error)
	RepositoryDetails(ctx context.Context, repos []string) []relay.RepositorySummary
}

// API serves the relay endpoints.
type API struct {
	service RelayService
	logger  *zap.Logger
}

// NewAPI creates the relay API handlers.
func NewAPI(service RelayService, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{service: service, logger: logger}
}

type forecastRequest struct {
	Repository string `json:"repository"`
}

type detailsEntry struct {
	Name string `json:"name"`
}

// IssueForecast handles POST /api/github.
func (a *API) IssueForecast(w http.ResponseWriter, r *http.Request) {
	logger := loggerFrom(r.Context(), a.logger)

	var body forecastRequest
	if err := decodeBody(r, &body); err != nil {
		logger.Debug("issue forecast body rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Missing 'repository' in request body")
		return
	}

	report, err := a.service.IssueForecast(r.Context(), body.Repository)
	if err != nil {
		kind := relay.KindOf(err)
		status := kind.HTTPStatus()
		fields := []zap.Field{
			zap.String("repository", body.Repository),
			zap.String("kind", string(kind)),
			zap.Int("status", status),
			zap.Error(err),
		}
		switch {
		case status >= http.StatusInternalServerError && !relay.IsContextError(err):
			logger.Error("issue forecast failed", fields...)
		default:
			logger.Info("issue forecast rejected", fields...)
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// RepositoryDetails handles POST /api/github/details.
func (a *API) RepositoryDetails(w http.ResponseWriter, r *http.Request) {
	logger := loggerFrom(r.Context(), a.logger)

	var entries []detailsEntry
	if err := decodeBody(r, &entries); err != nil {
		logger.Debug("repository details body rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Request body must be an array of {\"name\": \"owner/repo\"}")
		return
	}

	repos := make([]string, 0, len(entries))
	for _, entry := range entries {
		repos = append(repos, entry.Name)
	}
	summaries := a.service.RepositoryDetails(r.Context(), repos)
	logger.Info(
		"repository details served",
		zap.Int("requested", len(repos)),
		zap.Int("returned", len(summaries)),
	)
	writeJSON(w, http.StatusOK, summaries)
}

// decodeBody parses a JSON body regardless of Content-Type.
func decodeBody(r *http.Request, target any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(target); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(message)})
}
