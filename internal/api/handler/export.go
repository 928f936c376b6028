package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fintrack/fintrack/internal/api/models"
	"github.com/fintrack/fintrack/internal/api/response"
	"github.com/fintrack/fintrack/internal/export"
)

// DownloadPathPrefix is where download tokens are redeemed.
const DownloadPathPrefix = "/v1/privacy/exports/download/"

// ExportHandler handles data export endpoints.
type ExportHandler struct {
	service *export.Service
	logger  zerolog.Logger
}

// NewExportHandler creates a new ExportHandler.
func NewExportHandler(service *export.Service, logger zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		service: service,
		logger:  logger.With().Str("component", "export_handler").Logger(),
	}
}

// PreviewExport handles POST /v1/privacy/exports:preview - estimate an export.
func (h *ExportHandler) PreviewExport(w http.ResponseWriter, r *http.Request) {
	var input models.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	preview, err := h.service.GetExportPreview(toOptions(input))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.ExportPreview{
		EstimatedRecords: preview.EstimatedRecords,
		EstimatedSize:    preview.EstimatedSize,
		Categories:       preview.Categories,
		DateRange:        string(preview.DateRange),
	})
}

// CreateExport handles POST /v1/privacy/exports - generate an encrypted export.
func (h *ExportHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	var input models.ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	result, err := h.service.InitiateExport(r.Context(), requestUser(r), toOptions(input))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusCreated, models.Export{
		ExportID:      result.ExportID,
		Status:        models.ExportStatusReady,
		FileSize:      result.FileSize,
		DownloadToken: result.DownloadURL,
		DownloadPath:  DownloadPathPrefix + result.DownloadURL,
		ExpiresAt:     models.TimestampPtr(result.ExpiresAt),
	})
}

// DownloadExport handles GET /v1/privacy/exports/download/{token}.
// The decrypted file is streamed once and deleted when the response ends.
func (h *ExportHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		response.BadRequest(w, r, "token is required", nil)
		return
	}

	file, err := h.service.SecureDownload(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer h.service.Release(file)

	f, err := os.Open(file.Path)
	if err != nil {
		h.logger.Error().Err(err).Str("file_id", file.FileID).Msg("failed to open decrypted export")
		response.InternalError(w, r, "export could not be read")
		return
	}
	defer f.Close()

	format := export.FormatOf(file.FileID)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, file.FileID, format.Extension()))
	w.Header().Set("Cache-Control", "no-store")
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn().Err(err).Str("file_id", file.FileID).Msg("export download interrupted")
	}
}

func toOptions(in models.ExportRequest) export.Options {
	return export.Options{
		Format:              export.Format(in.Format),
		DateRange:           export.DateRange(in.DateRange),
		IncludePersonalInfo: in.IncludePersonalInfo,
		IncludeTransactions: in.IncludeTransactions,
		IncludeCategories:   in.IncludeCategories,
		IncludeSettings:     in.IncludeSettings,
		IncludeQAHistory:    in.IncludeQAHistory,
	}
}
