package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"brkdash/internal/audit"
	"brkdash/internal/configdoc/model"
	"brkdash/internal/configdoc/service"
	"brkdash/internal/services"
	"brkdash/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// MaxBodyBytes caps every request body the handler reads.
const MaxBodyBytes = 10 << 20

// ServiceName is reported by the health endpoint.
const ServiceName = "BRK CNC Dashboard"

type StatusChecker interface {
	Check(ctx context.Context) services.Status
}

type AuditLister interface {
	List(ctx context.Context, limit int) ([]audit.Entry, error)
}

type ConfigHandler struct {
	Service *service.ConfigService
	Prober  StatusChecker
	Audit   AuditLister
	Now     func() time.Time
}

func NewConfigHandler(svc *service.ConfigService, prober StatusChecker, auditLog AuditLister) *ConfigHandler {
	return &ConfigHandler{Service: svc, Prober: prober, Audit: auditLog, Now: time.Now}
}

type AuditResponse struct {
	Success bool          `json:"success"`
	Entries []audit.Entry `json:"entries"`
}

func (h *ConfigHandler) GetSetupConfig(w http.ResponseWriter, r *http.Request) {
	data, err := h.Service.LoadSetup(r.Context())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, model.ErrorResponse{Error: "Configuration not found", FirstTimeSetup: true})
			return
		}
		logger.Sugar.Errorf("Handler: Failed to load config: %v", err)
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to load configuration"})
		return
	}
	writeRaw(w, data)
}

func (h *ConfigHandler) SaveSetupConfig(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := h.Service.SaveSetup(r.Context(), body)
	if err != nil {
		h.fail(w, err, "Failed to save configuration")
		return
	}
	writeJSON(w, http.StatusOK, model.SaveResponse{
		Success: true,
		Message: "Configuration saved successfully",
		Path:    res.Path,
	})
}

// ResetSetupConfig answers the same way whether or not a document existed.
func (h *ConfigHandler) ResetSetupConfig(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Service.ResetSetup(r.Context()); err != nil {
		h.fail(w, err, "Failed to reset configuration")
		return
	}
	writeJSON(w, http.StatusOK, model.ResetResponse{Success: true, Message: "Configuration reset successfully"})
}

func (h *ConfigHandler) GetCompanyConfig(w http.ResponseWriter, r *http.Request) {
	data, err := h.Service.LoadCompany(r.Context())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, model.ErrorResponse{Error: "Company configuration not found"})
			return
		}
		logger.Sugar.Errorf("Handler: Failed to load company config: %v", err)
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to load company configuration"})
		return
	}
	writeRaw(w, data)
}

func (h *ConfigHandler) SaveCompanyConfig(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := h.Service.SaveCompany(r.Context(), body)
	if err != nil {
		h.fail(w, err, "Failed to save company configuration")
		return
	}
	writeJSON(w, http.StatusOK, model.SaveResponse{
		Success: true,
		Message: "Company configuration saved successfully",
		Path:    res.Path,
		Backup:  res.Backup,
	})
}

func (h *ConfigHandler) ResetCompanyConfig(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Service.ResetCompany(r.Context()); err != nil {
		h.fail(w, err, "Failed to reset company configuration")
		return
	}
	writeJSON(w, http.StatusOK, model.ResetResponse{Success: true, Message: "Company configuration reset successfully"})
}

func (h *ConfigHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.Service.ListBackups(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to list backups")
		return
	}
	writeJSON(w, http.StatusOK, model.BackupListResponse{Success: true, Backups: backups})
}

func (h *ConfigHandler) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "Invalid filename"})
		return
	}
	f, rec, err := h.Service.OpenBackup(r.Context(), name)
	switch {
	case errors.Is(err, model.ErrInvalidName):
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "Invalid filename"})
		return
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, model.ErrorResponse{Error: "Backup file not found"})
		return
	case err != nil:
		logger.Sugar.Errorf("Handler: Failed to download backup %s: %v", name, err)
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to download backup"})
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rec.Filename}))
	modTime := rec.Timestamp
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}
	http.ServeContent(w, r, rec.Filename, modTime, f)
}

func (h *ConfigHandler) DeleteBackups(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	var req model.DeleteBackupsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Filenames) == 0 {
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "No filenames provided"})
		return
	}

	resp, err := h.Service.DeleteBackups(r.Context(), req.Filenames)
	if err != nil {
		h.fail(w, err, "Failed to delete backups")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ConfigHandler) AddEntity(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := h.Service.AddEntity(r.Context(), collection, body)
	h.entityResponse(w, collection, res, err, "added")
}

func (h *ConfigHandler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := h.Service.UpdateEntity(r.Context(), collection, chi.URLParam(r, "id"), body)
	h.entityResponse(w, collection, res, err, "updated")
}

func (h *ConfigHandler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	res, err := h.Service.DeleteEntity(r.Context(), collection, chi.URLParam(r, "id"))
	h.entityResponse(w, collection, res, err, "deleted")
}

func (h *ConfigHandler) entityResponse(w http.ResponseWriter, collection string, res model.EntityResult, err error, verb string) {
	if err != nil {
		h.fail(w, err, "Failed to update company configuration")
		return
	}
	writeJSON(w, http.StatusOK, model.EntityResponse{
		Success:    true,
		Message:    fmt.Sprintf("Entry %q in %s %s successfully", res.ID, collection, verb),
		Collection: collection,
		ID:         res.ID,
		Backup:     res.Backup,
	})
}

func (h *ConfigHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.HealthResponse{
		Status:    "ok",
		Service:   ServiceName,
		Timestamp: h.Now().UTC().Format(model.TimestampLayout),
	})
}

func (h *ConfigHandler) ServicesStatus(w http.ResponseWriter, r *http.Request) {
	if h.Prober == nil {
		writeJSON(w, http.StatusServiceUnavailable, model.ErrorResponse{Error: "Service probing is not configured"})
		return
	}
	writeJSON(w, http.StatusOK, h.Prober.Check(r.Context()))
}

func (h *ConfigHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeJSON(w, http.StatusNotFound, model.ErrorResponse{Error: "Audit log is not enabled"})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "Invalid limit"})
			return
		}
		limit = n
	}

	entries, err := h.Audit.List(r.Context(), limit)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to list audit entries: %v", err)
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{Error: "Failed to list audit entries"})
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, AuditResponse{Success: true, Entries: entries})
}

// fail maps a service error onto a status code. Client errors carry the
// error text, except a missing document whose error names its path; server
// errors are logged and answered with msg only.
func (h *ConfigHandler) fail(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, model.ErrNoDocument):
		writeJSON(w, http.StatusNotFound, model.ErrorResponse{Error: "Company configuration not found"})
	case errors.Is(err, model.ErrInvalidName), errors.Is(err, model.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, model.ErrorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, model.ErrorResponse{Error: err.Error()})
	default:
		logger.Sugar.Errorf("Handler: %s: %v", msg, err)
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{Error: msg})
	}
}

// readBody reads a size-limited body, answering 413 or 400 itself when it
// cannot.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: "Request body too large"})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, model.ErrorResponse{Error: "Invalid request body"})
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Warnf("Handler: Failed to encode response: %v", err)
	}
}

// writeRaw sends a stored document as is.
func writeRaw(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
