package backups

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"mdip/core/auth"
	corebackups "mdip/core/backups"
	"mdip/core/utils"
)

type ServicePort interface {
	CreateBackup(ctx context.Context, actor, label string) (*corebackups.Artifact, error)
	List(ctx context.Context) ([]corebackups.Artifact, error)
	Prune(ctx context.Context, actor string) (int, error)
}

type Handler struct {
	svc    ServicePort
	logger *utils.Logger
}

func NewHandler(svc ServicePort, logger *utils.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type artifactDTO struct {
	Filename       string           `json:"filename"`
	CreatedAt      time.Time        `json:"created_at"`
	DBEngine       string           `json:"db_engine"`
	GooseDBVersion int64            `json:"goose_db_version"`
	Label          string           `json:"label,omitempty"`
	Checksum       string           `json:"sha256"`
	SizeBytes      int64            `json:"size_bytes"`
	EntityCounts   map[string]int64 `json:"entity_counts"`
}

func toDTO(a corebackups.Artifact) artifactDTO {
	m := a.Manifest
	return artifactDTO{
		Filename:       m.Filename,
		CreatedAt:      m.CreatedAt,
		DBEngine:       m.DBEngine,
		GooseDBVersion: m.GooseDBVersion,
		Label:          m.Label,
		Checksum:       m.Checksum,
		SizeBytes:      m.SizeBytes,
		EntityCounts:   m.EntityCounts,
	}
}

func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Errorf("list backups: %v", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	out := make([]artifactDTO, 0, len(items))
	for _, it := range items {
		out = append(out, toDTO(it))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	payload := struct {
		Label string `json:"label"`
	}{}
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
	}
	artifact, err := h.svc.CreateBackup(r.Context(), actorName(r), payload.Label)
	if err != nil {
		if errors.Is(err, corebackups.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}
	writeJSON(w, http.StatusCreated, toDTO(*artifact))
}

func (h *Handler) PruneBackups(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Prune(r.Context(), actorName(r))
	if err != nil {
		h.logger.Errorf("prune backups: %v", err)
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func actorName(r *http.Request) string {
	if u := auth.UserFromContext(r.Context()); u != nil {
		return u.Username
	}
	return "system"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
