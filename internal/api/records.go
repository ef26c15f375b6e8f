package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ashureev/opsbot/internal/domain"
	"github.com/go-chi/chi/v5"
)

// RecordLister reads saved records.
type RecordLister interface {
	SelectAll(ctx context.Context, kind domain.Kind) ([]domain.Record, error)
}

// RecordsHandler exposes saved phone numbers and email addresses.
type RecordsHandler struct {
	records RecordLister
	logger  *slog.Logger
}

// NewRecordsHandler creates a records handler.
func NewRecordsHandler(records RecordLister, logger *slog.Logger) *RecordsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordsHandler{records: records, logger: logger}
}

func (h *RecordsHandler) list(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := h.records.SelectAll(r.Context(), kind)
		if err != nil {
			h.logger.Error("Failed to list records", "kind", kind, "error", err)
			Error(w, http.StatusInternalServerError, "failed to read records")
			return
		}
		if recs == nil {
			recs = []domain.Record{}
		}
		JSON(w, http.StatusOK, map[string]any{"kind": kind, "records": recs})
	}
}

// RegisterRoutes registers the record listing routes.
func (h *RecordsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/phones", h.list(domain.KindPhone))
	r.Get("/emails", h.list(domain.KindEmail))
}
