package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mdip/core/store"
	"mdip/core/utils"
)

const (
	defaultRecordStatus = "Open"
	recordDateLayout    = "2006-01-02"
	maxRecordTextLen    = 4000
)

var errTitleRequired = errors.New("title is required")

// RecordsHandler serves incidents, datasets and tickets. Role gating happens in the route
// groups; the handler only validates payloads and writes the activity log.
type RecordsHandler struct {
	records store.RecordsStore
	audits  store.AuditStore
	logger  *utils.Logger
}

func NewRecordsHandler(records store.RecordsStore, audits store.AuditStore, logger *utils.Logger) *RecordsHandler {
	return &RecordsHandler{records: records, audits: audits, logger: logger}
}

func parseRecordFilter(r *http.Request) store.RecordFilter {
	q := r.URL.Query()
	f := store.RecordFilter{
		Status:   strings.TrimSpace(q.Get("status")),
		Severity: strings.TrimSpace(q.Get("severity")),
		Priority: strings.TrimSpace(q.Get("priority")),
		Category: strings.TrimSpace(q.Get("category")),
		Search:   strings.TrimSpace(q.Get("q")),
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		f.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		f.Offset = v
	}
	return f
}

func (h *RecordsHandler) storeFailure(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.logger.Errorf("records %s: %v", op, err)
	writeError(w, http.StatusServiceUnavailable, "service unavailable")
}

func (h *RecordsHandler) audit(ctx context.Context, r *http.Request, action, entity string, id int64, details string) {
	if err := h.audits.LogEntity(ctx, currentUsername(r), action, entity, id, details); err != nil {
		h.logger.Errorf("audit %s: %v", action, err)
	}
}

func validateRecordText(title string, fields ...string) error {
	if strings.TrimSpace(title) == "" {
		return errTitleRequired
	}
	for _, f := range append(fields, title) {
		if len(f) > maxRecordTextLen {
			return errors.New("field too long")
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func today() string {
	return utils.NowUTC().Format(recordDateLayout)
}

func validDate(v string) bool {
	if v == "" {
		return true
	}
	_, err := time.Parse(recordDateLayout, v)
	return err == nil
}

// Incidents

func (h *RecordsHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	items, err := h.records.ListIncidents(r.Context(), parseRecordFilter(r))
	if err != nil {
		h.storeFailure(w, "list incidents", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *RecordsHandler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inc, err := h.records.GetIncident(r.Context(), id)
	if err != nil {
		h.storeFailure(w, "get incident", err)
		return
	}
	if inc == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (h *RecordsHandler) decodeIncident(w http.ResponseWriter, r *http.Request) (*store.Incident, bool) {
	var inc store.Incident
	if !decodeJSON(w, r, &inc) {
		return nil, false
	}
	inc.Title = strings.TrimSpace(inc.Title)
	inc.Severity = orDefault(inc.Severity, "Medium")
	inc.Status = orDefault(inc.Status, defaultRecordStatus)
	inc.Date = orDefault(inc.Date, today())
	if err := validateRecordText(inc.Title, inc.Description); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if !validDate(inc.Date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return nil, false
	}
	return &inc, true
}

func (h *RecordsHandler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	inc, ok := h.decodeIncident(w, r)
	if !ok {
		return
	}
	inc.CreatedBy = currentUsername(r)
	id, err := h.records.CreateIncident(r.Context(), inc)
	if err != nil {
		h.storeFailure(w, "create incident", err)
		return
	}
	h.audit(r.Context(), r, "incident.created", "incident", id, inc.Title)
	writeJSON(w, http.StatusCreated, inc)
}

func (h *RecordsHandler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inc, ok := h.decodeIncident(w, r)
	if !ok {
		return
	}
	inc.ID = id
	if err := h.records.UpdateIncident(r.Context(), inc); err != nil {
		h.storeFailure(w, "update incident", err)
		return
	}
	h.audit(r.Context(), r, "incident.updated", "incident", id, inc.Status)
	updated, err := h.records.GetIncident(r.Context(), id)
	if err != nil || updated == nil {
		writeJSON(w, http.StatusOK, inc)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *RecordsHandler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.records.DeleteIncident(r.Context(), id); err != nil {
		h.storeFailure(w, "delete incident", err)
		return
	}
	h.audit(r.Context(), r, "incident.deleted", "incident", id, "")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Datasets

func (h *RecordsHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	items, err := h.records.ListDatasets(r.Context(), parseRecordFilter(r))
	if err != nil {
		h.storeFailure(w, "list datasets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *RecordsHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ds, err := h.records.GetDataset(r.Context(), id)
	if err != nil {
		h.storeFailure(w, "get dataset", err)
		return
	}
	if ds == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *RecordsHandler) decodeDataset(w http.ResponseWriter, r *http.Request) (*store.Dataset, bool) {
	var ds store.Dataset
	if !decodeJSON(w, r, &ds) {
		return nil, false
	}
	ds.Name = strings.TrimSpace(ds.Name)
	if err := validateRecordText(ds.Name, ds.Source, ds.Category, ds.Format); err != nil {
		if errors.Is(err, errTitleRequired) {
			err = errors.New("name is required")
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if ds.Size < 0 {
		writeError(w, http.StatusBadRequest, "size must not be negative")
		return nil, false
	}
	return &ds, true
}

func (h *RecordsHandler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.decodeDataset(w, r)
	if !ok {
		return
	}
	ds.CreatedBy = currentUsername(r)
	id, err := h.records.CreateDataset(r.Context(), ds)
	if err != nil {
		h.storeFailure(w, "create dataset", err)
		return
	}
	h.audit(r.Context(), r, "dataset.created", "dataset", id, ds.Name)
	writeJSON(w, http.StatusCreated, ds)
}

func (h *RecordsHandler) UpdateDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ds, ok := h.decodeDataset(w, r)
	if !ok {
		return
	}
	ds.ID = id
	if err := h.records.UpdateDataset(r.Context(), ds); err != nil {
		h.storeFailure(w, "update dataset", err)
		return
	}
	h.audit(r.Context(), r, "dataset.updated", "dataset", id, ds.Name)
	updated, err := h.records.GetDataset(r.Context(), id)
	if err != nil || updated == nil {
		writeJSON(w, http.StatusOK, ds)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *RecordsHandler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.records.DeleteDataset(r.Context(), id); err != nil {
		h.storeFailure(w, "delete dataset", err)
		return
	}
	h.audit(r.Context(), r, "dataset.deleted", "dataset", id, "")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Tickets

func (h *RecordsHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	items, err := h.records.ListTickets(r.Context(), parseRecordFilter(r))
	if err != nil {
		h.storeFailure(w, "list tickets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *RecordsHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.records.GetTicket(r.Context(), id)
	if err != nil {
		h.storeFailure(w, "get ticket", err)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *RecordsHandler) decodeTicket(w http.ResponseWriter, r *http.Request) (*store.Ticket, bool) {
	var t store.Ticket
	if !decodeJSON(w, r, &t) {
		return nil, false
	}
	t.Title = strings.TrimSpace(t.Title)
	t.Priority = orDefault(t.Priority, "Medium")
	t.Status = orDefault(t.Status, defaultRecordStatus)
	t.CreatedDate = orDefault(t.CreatedDate, today())
	if err := validateRecordText(t.Title, t.Description, t.Resolution, t.AssignedTo); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if !validDate(t.CreatedDate) {
		writeError(w, http.StatusBadRequest, "created_date must be YYYY-MM-DD")
		return nil, false
	}
	return &t, true
}

func (h *RecordsHandler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	t, ok := h.decodeTicket(w, r)
	if !ok {
		return
	}
	t.CreatedBy = currentUsername(r)
	id, err := h.records.CreateTicket(r.Context(), t)
	if err != nil {
		h.storeFailure(w, "create ticket", err)
		return
	}
	h.audit(r.Context(), r, "ticket.created", "ticket", id, t.Title)
	writeJSON(w, http.StatusCreated, t)
}

func (h *RecordsHandler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, ok := h.decodeTicket(w, r)
	if !ok {
		return
	}
	t.ID = id
	if err := h.records.UpdateTicket(r.Context(), t); err != nil {
		h.storeFailure(w, "update ticket", err)
		return
	}
	h.audit(r.Context(), r, "ticket.updated", "ticket", id, t.Status)
	updated, err := h.records.GetTicket(r.Context(), id)
	if err != nil || updated == nil {
		writeJSON(w, http.StatusOK, t)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *RecordsHandler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.records.DeleteTicket(r.Context(), id); err != nil {
		h.storeFailure(w, "delete ticket", err)
		return
	}
	h.audit(r.Context(), r, "ticket.deleted", "ticket", id, "")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
