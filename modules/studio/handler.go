package studio

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"art-studio-server/modules/catalog"
	"art-studio-server/modules/common/httputil"
	"art-studio-server/modules/history"
	"art-studio-server/modules/inference"
	"art-studio-server/modules/realtime"
)

// GenerateRequestDTO - body of POST /api/sessions/{id}/generate.
// Omitted numeric fields take the studio defaults.
type GenerateRequestDTO struct {
	Prompt         string   `json:"prompt"`
	Category       string   `json:"category,omitempty"`
	Style          string   `json:"style,omitempty"`
	NegativePrompt string   `json:"negative_prompt,omitempty" validate:"max=2000"`
	GuidanceScale  *float64 `json:"guidance_scale,omitempty" validate:"omitempty,gte=1,lte=20"`
	Steps          *int     `json:"steps,omitempty" validate:"omitempty,gte=10,lte=150"`
	NumVariations  *int     `json:"num_variations,omitempty" validate:"omitempty,gte=1,lte=4"`
	Width          *int     `json:"width,omitempty" validate:"omitempty,oneof=512 768"`
	Height         *int     `json:"height,omitempty" validate:"omitempty,oneof=512 768"`
}

func (d GenerateRequestDTO) toRequest() GenerationRequest {
	req := GenerationRequest{
		BasePrompt:     d.Prompt,
		Style:          d.Style,
		NegativePrompt: strings.TrimSpace(d.NegativePrompt),
		GuidanceScale:  DefaultGuidanceScale,
		Steps:          DefaultSteps,
		NumVariations:  DefaultVariations,
		Width:          DefaultCanvasSize,
		Height:         DefaultCanvasSize,
	}
	if req.Style == "" {
		req.Style = defaultStyle(d.Category)
	}
	if d.GuidanceScale != nil {
		req.GuidanceScale = *d.GuidanceScale
	}
	if d.Steps != nil {
		req.Steps = *d.Steps
	}
	if d.NumVariations != nil {
		req.NumVariations = *d.NumVariations
	}
	if d.Width != nil {
		req.Width = *d.Width
	}
	if d.Height != nil {
		req.Height = *d.Height
	}
	return req
}

// ImageView - one downloadable image
type ImageView struct {
	Index    int    `json:"index"`
	Seed     uint32 `json:"seed"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// RecordView - a history record without its image bytes
type RecordView struct {
	ID             string         `json:"id"`
	Timestamp      string         `json:"timestamp"`
	Title          string         `json:"title"`
	BasePrompt     string         `json:"base_prompt"`
	Style          string         `json:"style"`
	FullPrompt     string         `json:"full_prompt"`
	NegativePrompt string         `json:"negative_prompt,omitempty"`
	Params         history.Params `json:"params"`
	Images         []ImageView    `json:"images"`
}

type GenerateResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Record  RecordView `json:"record"`
	Evicted int        `json:"evicted"`
}

type SessionResponse struct {
	SessionID    string    `json:"sessionId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Age          string    `json:"age"`
	Inactive     string    `json:"inactive"`
	Running      bool      `json:"running"`
	HistoryCount int       `json:"historyCount"`
	Clients      int       `json:"clients"`
}

// LatestFilename - download name of image index (1-based) of a fresh batch
func LatestFilename(style string, index int) string {
	return fmt.Sprintf("%s_%d.png", strings.ReplaceAll(style, " ", "_"), index)
}

// HistoryFilename - download name of image index (1-based) of a history record
func HistoryFilename(timestamp string, index int) string {
	return fmt.Sprintf("hist_%s_%d.png", timestamp, index)
}

// Handler serves the studio HTTP API and the progress socket.
type Handler struct {
	sessions     *SessionManager
	orchestrator *Orchestrator
	hub          *realtime.Hub
	validate     *validator.Validate
	backend      string
}

func NewHandler(sessions *SessionManager, orchestrator *Orchestrator, hub *realtime.Hub, backend string) *Handler {
	return &Handler{
		sessions:     sessions,
		orchestrator: orchestrator,
		hub:          hub,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		backend:      backend,
	}
}

// RegisterRoutes mounts every studio route on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/metrics", h.GetMetrics).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.HandleWebSocket)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/styles", h.GetStyles).Methods(http.MethodGet)
	api.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.EndSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/generate", h.Generate).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/cancel", h.CancelBatch).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/history", h.GetHistory).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/latest/{index}", h.DownloadLatest).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/history/{recordId}/{index}", h.DownloadHistory).Methods(http.MethodGet)
}

// HealthCheck - GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "art-studio",
		"backend": h.backend,
	})
}

// GetMetrics - GET /metrics
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	open, total := h.hub.Connections()

	sessions := h.sessions.List()
	details := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		details = append(details, map[string]any{
			"sessionId":    s.ID,
			"createdAt":    s.CreatedAt,
			"lastActivity": s.LastActivity(),
			"running":      s.Running(),
			"clients":      h.hub.ClientCount(s.ID),
		})
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]any{
		"server":           h.sessions.Metrics().Snapshot(),
		"backend":          h.backend,
		"totalConnections": total,
		"currentClients":   open,
		"sessions":         details,
	})
}

// GetStyles - GET /api/styles
func (h *Handler) GetStyles(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]any{
		"names":        catalog.Names(),
		"categories":   catalog.Categories(),
		"defaultStyle": catalog.DefaultStyle(),
	})
}

// CreateSession - POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Create()
	httputil.RespondJSON(w, http.StatusCreated, h.sessionResponse(r, session))
}

// GetSession - GET /api/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	httputil.RespondJSON(w, http.StatusOK, h.sessionResponse(r, session))
}

// EndSession - DELETE /api/sessions/{id}
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.End(r.Context(), mux.Vars(r)["id"]) {
		h.respondError(w, ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Generate - POST /api/sessions/{id}/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var dto GenerateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		log.Warn().Err(err).Str("session", session.ID).Msg("❌ [Studio] Invalid request")
		httputil.Error(w, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httputil.Error(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if msg := checkStyle(dto.Category, dto.Style); msg != "" {
		httputil.Error(w, http.StatusBadRequest, msg)
		return
	}

	outcome, err := h.orchestrator.Run(r.Context(), session, dto.toRequest(), func(p Progress) {
		h.hub.Publish(session.ID, realtime.Event{
			Type:     realtime.EventProgress,
			Index:    p.Index,
			Total:    p.Total,
			Fraction: p.Fraction,
			Status:   p.Status,
		})
	})
	if err != nil {
		if batchStarted(err) {
			h.hub.Publish(session.ID, realtime.Event{Type: realtime.EventReset})
			h.hub.Publish(session.ID, realtime.Event{Type: realtime.EventFailed, Message: failureMessage(err)})
		}
		h.respondError(w, err)
		return
	}

	view := latestView(session.ID, &outcome.Record)
	h.hub.Publish(session.ID, realtime.Event{
		Type:     realtime.EventComplete,
		Index:    len(view.Images) - 1,
		Total:    len(view.Images),
		Fraction: 1,
		Message:  msgComplete,
		RecordID: outcome.Record.ID,
	})
	httputil.RespondJSON(w, http.StatusOK, GenerateResponse{
		Success: true,
		Message: msgComplete,
		Record:  view,
		Evicted: outcome.Evicted,
	})
}

// CancelBatch - POST /api/sessions/{id}/cancel
func (h *Handler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	cancelled := session.Cancel()
	if cancelled {
		log.Info().Str("session", session.ID).Msg("🛑 [Studio] Batch cancellation requested")
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"cancelled": cancelled,
	})
}

// GetHistory - GET /api/sessions/{id}/history, newest first
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	records, err := session.Store().List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	views := make([]RecordView, 0, len(records))
	for _, rec := range history.Newest(records) {
		views = append(views, historyView(session.ID, &rec))
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": session.ID,
		"records":   views,
	})
}

// DownloadLatest - GET /api/sessions/{id}/latest/{index}
func (h *Handler) DownloadLatest(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	rec := session.Latest()
	if rec == nil {
		httputil.Error(w, http.StatusNotFound, "No artwork generated yet")
		return
	}
	img, ok := imageAt(rec, mux.Vars(r)["index"])
	if !ok {
		httputil.Error(w, http.StatusNotFound, "Image not found")
		return
	}
	httputil.RespondPNG(w, LatestFilename(rec.Style, img.Index), rec.Images[img.Index-1].Data)
}

// DownloadHistory - GET /api/sessions/{id}/history/{recordId}/{index}
func (h *Handler) DownloadHistory(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	rec, err := session.Store().Get(r.Context(), mux.Vars(r)["recordId"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	img, ok := imageAt(rec, mux.Vars(r)["index"])
	if !ok {
		httputil.Error(w, http.StatusNotFound, "Image not found")
		return
	}
	httputil.RespondPNG(w, HistoryFilename(rec.Timestamp, img.Index), rec.Images[img.Index-1].Data)
}

// HandleWebSocket - GET /ws?session={id}
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if _, ok := h.sessions.Get(sessionID); !ok {
		h.respondError(w, ErrSessionNotFound)
		return
	}
	if err := h.hub.ServeWS(w, r, sessionID); err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("⚠️ [Studio] WebSocket upgrade failed")
	}
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	session, ok := h.sessions.Get(mux.Vars(r)["id"])
	if !ok {
		h.respondError(w, ErrSessionNotFound)
		return nil, false
	}
	return session, true
}

func (h *Handler) sessionResponse(r *http.Request, s *Session) SessionResponse {
	count, err := s.Store().Len(r.Context())
	if err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("⚠️ [Studio] Failed to count history")
	}
	last := s.LastActivity()
	return SessionResponse{
		SessionID:    s.ID,
		CreatedAt:    s.CreatedAt,
		LastActivity: last,
		Age:          time.Since(s.CreatedAt).Round(time.Second).String(),
		Inactive:     time.Since(last).Round(time.Second).String(),
		Running:      s.Running(),
		HistoryCount: count,
		Clients:      h.hub.ClientCount(s.ID),
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var validationErr *ValidationError
	var genErr *inference.GenerationError
	switch {
	case errors.As(err, &validationErr):
		httputil.Error(w, http.StatusUnprocessableEntity, validationErr.Message)
	case errors.Is(err, ErrSessionNotFound):
		httputil.Error(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, history.ErrRecordNotFound):
		httputil.Error(w, http.StatusNotFound, "History record not found")
	case errors.Is(err, ErrBatchInProgress):
		httputil.Error(w, http.StatusConflict, err.Error())
	case errors.As(err, &genErr):
		httputil.Error(w, http.StatusBadGateway, msgFailedPrefix+genErr.Message)
	default:
		log.Error().Err(err).Msg("❌ [Studio] Internal error")
		httputil.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}

// batchStarted reports whether err came from a batch that got past its
// admission checks, so listeners may hold partial progress.
func batchStarted(err error) bool {
	var validationErr *ValidationError
	return !errors.As(err, &validationErr) &&
		!errors.Is(err, ErrBatchInProgress) &&
		!errors.Is(err, ErrSessionNotFound)
}

func failureMessage(err error) string {
	var genErr *inference.GenerationError
	if errors.As(err, &genErr) {
		return msgFailedPrefix + genErr.Message
	}
	return msgFailedPrefix + "internal server error"
}

// defaultStyle is the first style of category, or of the catalog when
// category is empty.
func defaultStyle(category string) string {
	if styles, ok := catalog.Styles(category); ok && len(styles) > 0 {
		return styles[0]
	}
	return catalog.DefaultStyle()
}

func checkStyle(category, style string) string {
	if category != "" {
		styles, ok := catalog.Styles(category)
		if !ok {
			return fmt.Sprintf("Unknown style category %q", category)
		}
		if style == "" {
			return ""
		}
		for _, s := range styles {
			if s == style {
				return ""
			}
		}
		return fmt.Sprintf("Style %q is not in category %q", style, category)
	}
	if style != "" && !catalog.Contains(style) {
		return fmt.Sprintf("Unknown style %q", style)
	}
	return ""
}

func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// imageAt resolves a 1-based index path segment.
func imageAt(rec *history.Record, raw string) (ImageView, bool) {
	index, err := strconv.Atoi(raw)
	if err != nil || index < 1 || index > len(rec.Images) {
		return ImageView{}, false
	}
	return ImageView{Index: index, Seed: rec.Images[index-1].Seed}, true
}

func latestView(sessionID string, rec *history.Record) RecordView {
	view := recordView(rec)
	for i, img := range rec.Images {
		view.Images = append(view.Images, ImageView{
			Index:    i + 1,
			Seed:     img.Seed,
			Filename: LatestFilename(rec.Style, i+1),
			URL:      fmt.Sprintf("/api/sessions/%s/latest/%d", sessionID, i+1),
		})
	}
	return view
}

func historyView(sessionID string, rec *history.Record) RecordView {
	view := recordView(rec)
	for i, img := range rec.Images {
		view.Images = append(view.Images, ImageView{
			Index:    i + 1,
			Seed:     img.Seed,
			Filename: HistoryFilename(rec.Timestamp, i+1),
			URL:      fmt.Sprintf("/api/sessions/%s/history/%s/%d", sessionID, rec.ID, i+1),
		})
	}
	return view
}

func recordView(rec *history.Record) RecordView {
	return RecordView{
		ID:             rec.ID,
		Timestamp:      rec.Timestamp,
		Title:          rec.Timestamp + " - " + rec.Style,
		BasePrompt:     rec.BasePrompt,
		Style:          rec.Style,
		FullPrompt:     rec.FullPrompt,
		NegativePrompt: rec.NegativePrompt,
		Params:         rec.Params,
		Images:         make([]ImageView, 0, len(rec.Images)),
	}
}
