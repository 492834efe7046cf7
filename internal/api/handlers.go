package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/bones/internal/apperr"
	"github.com/starford/bones/internal/models"
	"github.com/starford/bones/internal/vibeservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *vibeservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *vibeservice.Service) *Handler {
	return &Handler{svc: svc}
}

// GetVibe handles GET /api/vibe.
//
//	@Summary		Current vibe
//	@Tags			vibe
//	@Produce		json
//	@Success		200	{object}	VibeResponse
//	@Router			/vibe [get]
func (h *Handler) GetVibe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.GetCurrentView(r.Context()))
}

// SetVibe handles PUT /api/vibe.
//
//	@Summary		Manually override the stored classification
//	@Tags			vibe
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SetVibeRequest	true	"Classification"
//	@Success		200		{object}	VibeResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/vibe [put]
func (h *Handler) SetVibe(w http.ResponseWriter, r *http.Request) {
	var req SetVibeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	c, err := models.ParseClassification(req.Classification)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unknown classification"))
		return
	}

	view, err := h.svc.SetClassification(r.Context(), c)
	if err != nil {
		h.writeWriteError(w, r, "set vibe", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Classify handles POST /api/classify.
//
//	@Summary		Classify text and store the result
//	@Tags			vibe
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ClassifyRequest	true	"Text to classify"
//	@Success		200		{object}	ClassifyResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/classify [post]
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	res, err := h.svc.ClassifyAndSet(r.Context(), req.Text)
	if err != nil {
		h.writeWriteError(w, r, "classify", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) writeWriteError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidClassification):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid classification"))
	case r.Context().Err() != nil:
		// Client went away; nothing was written.
		slog.Debug(op+" cancelled", slog.String("error", err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
