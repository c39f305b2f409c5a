package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"promo-gate/internal/promotion"
	"promo-gate/internal/session"
	"promo-gate/internal/settings"
)

type Promotions interface {
	FetchEligible(ctx context.Context, now time.Time) []promotion.Item
	Invalidate()
}

type Features interface {
	IsEnabled(ctx context.Context, id string) bool
	Snapshot(ctx context.Context) map[string]bool
	Invalidate()
}

type Handler struct {
	Promotions  Promotions
	Features    Features
	Sessions    *session.Store
	Settings    *settings.Resolver
	Clock       clock.Clock
	Placeholder string // image shown when a promotion image fails to load
}

// promotionJSON is the wire item plus the client-side image fallback.
type promotionJSON struct {
	item     promotion.Item
	fallback string
}

func (p promotionJSON) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(p.item)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["fallbackImageUrl"] = p.fallback
	return json.Marshal(m)
}

type viewJSON struct {
	SessionID  string          `json:"sessionId"`
	Banner     *promotionJSON  `json:"banner"`
	BannerPos  int             `json:"bannerIndex"`
	BannerLen  int             `json:"bannerCount"`
	Popup      *promotionJSON  `json:"popup"`
	PopupState string          `json:"popupState"`
	Eligible   []promotionJSON `json:"eligible"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) wrap(it promotion.Item) promotionJSON {
	return promotionJSON{item: it, fallback: h.Placeholder}
}

func (h *Handler) wrapAll(items []promotion.Item) []promotionJSON {
	out := make([]promotionJSON, 0, len(items))
	for _, it := range items {
		out = append(out, h.wrap(it))
	}
	return out
}

func (h *Handler) view(v session.View) viewJSON {
	out := viewJSON{
		SessionID:  v.SessionID,
		BannerPos:  v.BannerPos,
		BannerLen:  v.BannerLen,
		PopupState: v.PopupState.String(),
		Eligible:   h.wrapAll(v.Eligible),
	}
	if v.Banner != nil {
		b := h.wrap(*v.Banner)
		out.Banner = &b
	}
	if v.Popup != nil {
		p := h.wrap(*v.Popup)
		out.Popup = &p
	}
	return out
}

func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	items := h.Promotions.FetchEligible(r.Context(), h.Clock.Now())
	if len(items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, h.wrapAll(items))
}

func (h *Handler) CreateSession(w http.ResponseWriter, _ *http.Request) {
	s := h.Sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]string{"id": s.ID})
}

func (h *Handler) MountSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := s.Mount(r.Context())
	h.respondView(w, v, err)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.view(s.View()))
}

func (h *Handler) SelectPopup(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := s.Select(chi.URLParam(r, "promotionID"))
	h.respondView(w, v, err)
}

func (h *Handler) DismissPopup(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := s.Dismiss()
	h.respondView(w, v, err)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Delete(chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Feature(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "featureID")
	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"enabled": h.Features.IsEnabled(r.Context(), id),
	})
}

func (h *Handler) FeatureSet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"features": h.Features.Snapshot(r.Context())})
}

type baseURLJSON struct {
	BaseURL    string `json:"baseUrl"`
	Default    string `json:"default"`
	Overridden bool   `json:"overridden"`
}

func (h *Handler) GetBaseURL(w http.ResponseWriter, r *http.Request) {
	_, overridden, err := h.Settings.Override(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("read base url override")
	}
	writeJSON(w, http.StatusOK, baseURLJSON{
		BaseURL:    h.Settings.BaseURL(r.Context()),
		Default:    h.Settings.Default(),
		Overridden: overridden,
	})
}

func (h *Handler) PutBaseURL(w http.ResponseWriter, r *http.Request) {
	var in struct {
		BaseURL string `json:"baseUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"baseUrl\": \"...\"}")
		return
	}
	u, err := h.Settings.SetOverride(r.Context(), in.BaseURL)
	if errors.Is(err, settings.ErrInvalidURL) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("store base url override")
		writeError(w, http.StatusInternalServerError, "could not store override")
		return
	}
	h.invalidate()
	log.Info().Str("base_url", u).Msg("base url overridden")
	writeJSON(w, http.StatusOK, baseURLJSON{BaseURL: u, Default: h.Settings.Default(), Overridden: true})
}

func (h *Handler) DeleteBaseURL(w http.ResponseWriter, r *http.Request) {
	if err := h.Settings.ClearOverride(r.Context()); err != nil {
		log.Error().Err(err).Msg("clear base url override")
		writeError(w, http.StatusInternalServerError, "could not clear override")
		return
	}
	h.invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// invalidate drops cached upstream data fetched from the previous backend.
func (h *Handler) invalidate() {
	h.Promotions.Invalidate()
	h.Features.Invalidate()
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return s, true
}

func (h *Handler) respondView(w http.ResponseWriter, v session.View, err error) {
	switch {
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, session.ErrUnknownPromotion):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, h.view(v))
	}
}
