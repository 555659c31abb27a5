package handlers

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mdip/core/store"
)

type LogsHandler struct {
	audits store.AuditStore
}

func NewLogsHandler(audits store.AuditStore) *LogsHandler {
	return &LogsHandler{audits: audits}
}

func (h *LogsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.audits == nil {
		writeJSON(w, http.StatusOK, map[string]any{"items": []store.AuditRecord{}})
		return
	}
	filter := parseLogFilter(r)
	items, err := h.audits.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	if items == nil {
		items = []store.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *LogsHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.audits == nil {
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	filter := parseLogFilter(r)
	filter.Limit = 1000
	items, err := h.audits.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	filename := "activity_log_" + time.Now().UTC().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"time", "username", "action", "entity", "details"})
	for i := range items {
		entity := items[i].EntityType
		if items[i].EntityID != nil {
			entity += "#" + strconv.FormatInt(*items[i].EntityID, 10)
		}
		_ = writer.Write([]string{
			items[i].CreatedAt.UTC().Format(time.RFC3339),
			strings.TrimSpace(items[i].Username),
			strings.TrimSpace(items[i].Action),
			entity,
			strings.TrimSpace(items[i].Details),
		})
	}
	writer.Flush()
}

func parseLogFilter(r *http.Request) store.AuditFilter {
	q := r.URL.Query()
	var since time.Time
	if rawSince := strings.TrimSpace(q.Get("since")); rawSince != "" {
		if parsed, err := parseDateTime(rawSince); err == nil && !parsed.IsZero() {
			since = parsed.UTC()
		}
	}
	limit := 0
	if rawLimit := strings.TrimSpace(q.Get("limit")); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return store.AuditFilter{
		Username:     strings.ToLower(strings.TrimSpace(q.Get("user"))),
		ActionPrefix: strings.ToLower(strings.TrimSpace(q.Get("action"))),
		EntityType:   strings.ToLower(strings.TrimSpace(q.Get("entity"))),
		Since:        since,
		Limit:        limit,
	}
}

func parseDateTime(raw string) (time.Time, error) {
	val := strings.TrimSpace(raw)
	if val == "" {
		return time.Time{}, nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, val); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, strconv.ErrSyntax
}
