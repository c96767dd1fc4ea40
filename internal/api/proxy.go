package api

import (
	"errors"
	"net/http"

	"mobility/m/internal/geodata"
	"mobility/m/internal/translate"
)

func (h *Handler) wheelmap(w http.ResponseWriter, r *http.Request) {
	bbox, err := geodata.ParseBBox(r.URL.Query().Get("bbox"))
	switch {
	case errors.Is(err, geodata.ErrNoBBox):
		respondError(w, http.StatusBadRequest, "No bbox provided")
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "Invalid bbox format")
		return
	}

	body, err := h.geodata.Fetch(r.Context(), bbox)
	if err != nil {
		var upErr *geodata.UpstreamError
		if errors.As(err, &upErr) && upErr.Status != 0 {
			respondJSON(w, http.StatusBadGateway, map[string]any{"error": "Overpass API failed", "status": upErr.Status})
			return
		}
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type translateRequest struct {
	Text string `json:"text"`
}

type translateResponse struct {
	Success        bool   `json:"success"`
	OriginalText   string `json:"original_text"`
	TranslatedText string `json:"translated_text"`
	SourceLanguage string `json:"src_lang"`
}

func (h *Handler) translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Text == "" {
		respondFailure(w, http.StatusBadRequest, "No text provided")
		return
	}

	res, err := h.translator.Translate(r.Context(), req.Text, "en")
	if errors.Is(err, translate.ErrEmptyText) {
		respondFailure(w, http.StatusBadRequest, "No text provided")
		return
	}
	if err != nil {
		respondFailure(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, translateResponse{
		Success:        true,
		OriginalText:   req.Text,
		TranslatedText: res.Text,
		SourceLanguage: res.SourceLanguage,
	})
}
