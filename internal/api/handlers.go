package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dmflow/internal/automation"
	"dmflow/internal/outreach"
	"dmflow/internal/template"
	"dmflow/pkg/logx"
)

type workspaceHandler struct {
	svc *automation.Service
	log logx.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---- Recipients ----

func (h *workspaceHandler) listRecipients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"recipients": h.svc.Recipients(),
		"selection":  h.svc.Selection(),
	})
}

func (h *workspaceHandler) addRecipient(w http.ResponseWriter, r *http.Request) {
	var req outreach.NewRecipient
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	rec, err := h.svc.AddRecipient(req)
	if err != nil {
		var verr *outreach.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": verr.Error(),
				"field": verr.Field,
			})
			return
		}
		h.log.Error("add recipient failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "server error")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *workspaceHandler) removeRecipient(w http.ResponseWriter, r *http.Request) {
	if !h.svc.RemoveRecipient(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *workspaceHandler) toggleSelect(w http.ResponseWriter, r *http.Request) {
	selected, ok := h.svc.ToggleSelect(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"selected": selected})
}

// ---- Template & variables ----

func (h *workspaceHandler) getTemplate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"template":  h.svc.Template(),
		"variables": template.Extract(h.svc.Template()),
	})
}

func (h *workspaceHandler) putTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Template string `json:"template"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	h.svc.SetTemplate(req.Template)
	w.WriteHeader(http.StatusNoContent)
}

func (h *workspaceHandler) getVariables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Variables())
}

func (h *workspaceHandler) putVariables(w http.ResponseWriter, r *http.Request) {
	var vars map[string]string
	if err := json.NewDecoder(r.Body).Decode(&vars); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	for k, v := range vars {
		if strings.TrimSpace(k) == "" {
			writeError(w, http.StatusBadRequest, "variable keys must be non-empty")
			return
		}
		h.svc.SetVariable(k, v)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *workspaceHandler) variableCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, template.Catalog())
}

func (h *workspaceHandler) preview(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.svc.Preview(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"preview": msg})
}

// ---- Sending ----

func (h *workspaceHandler) sendNow(w http.ResponseWriter, r *http.Request) {
	n := h.svc.SendNow(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"attempted": n})
}

func (h *workspaceHandler) schedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunAt string `json:"run_at"` // RFC3339
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	runAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.RunAt))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run_at (RFC3339)")
		return
	}

	scheduled, immediate := h.svc.ScheduleSend(r.Context(), runAt)
	writeJSON(w, http.StatusOK, map[string]any{
		"scheduled": scheduled,
		"immediate": immediate,
	})
}

// ---- Observability ----

func (h *workspaceHandler) timeline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Timeline())
}

func (h *workspaceHandler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}
