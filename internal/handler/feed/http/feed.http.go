package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nepselabs/feed-service/internal/config"
	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/nepselabs/feed-service/internal/service/alert"
	"github.com/nepselabs/feed-service/internal/service/feed"
	"github.com/shopspring/decimal"
)

var (
	errAPIKeyMissing  = errors.New("api key is required")
	errAPIKeyInvalid  = errors.New("invalid api key")
	errAPIKeyInactive = errors.New("api key is inactive")
	errAPIKeyExpired  = errors.New("api key is expired")
)

type CreateAlertRequest struct {
	Symbol   string `json:"symbol"`
	Type     string `json:"type"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

type SymbolRequest struct {
	Symbol string `json:"symbol"`
}

type AlertIDRequest struct {
	ID string `json:"id"`
}

type Handler struct {
	feedService *feed.Service
}

func NewFeedHTTPHandler(feedService *feed.Service) *Handler {
	return &Handler{feedService: feedService}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/feed/v1/quotes", h.withAPIKey(h.Quotes))
	mux.HandleFunc("/feed/v1/orderbook", h.withAPIKey(h.OrderBook))
	mux.HandleFunc("/feed/v1/trades", h.withAPIKey(h.Trades))
	mux.HandleFunc("/feed/v1/depth", h.withAPIKey(h.Depth))
	mux.HandleFunc("/feed/v1/sentiment", h.withAPIKey(h.Sentiment))
	mux.HandleFunc("/feed/v1/session", h.withAPIKey(h.Session))
	mux.HandleFunc("/feed/v1/connection", h.withAPIKey(h.Connection))
	mux.HandleFunc("/feed/v1/connection/connect", h.withAPIKey(h.Connect))
	mux.HandleFunc("/feed/v1/connection/disconnect", h.withAPIKey(h.Disconnect))
	mux.HandleFunc("/feed/v1/symbols", h.withAPIKey(h.Symbols))
	mux.HandleFunc("/feed/v1/alerts", h.withAPIKey(h.Alerts))
	mux.HandleFunc("/feed/v1/alerts/toggle", h.withAPIKey(h.ToggleAlert))
}

func (h *Handler) withAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validateAPIKey(resolveAPIKey(r)); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
			return
		}

		next(w, r)
	}
}

func (h *Handler) Quotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	var symbols []string
	if raw := strings.TrimSpace(r.URL.Query().Get("symbols")); raw != "" {
		symbols = strings.Split(raw, ",")
	}

	writeJSON(w, http.StatusOK, h.feedService.GetQuotes(symbols...))
}

func (h *Handler) OrderBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "symbol is required"})
		return
	}

	book, ok := h.feedService.GetOrderBook(symbol)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "order book not found"})
		return
	}

	writeJSON(w, http.StatusOK, book)
}

func (h *Handler) Trades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "symbol is required"})
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	writeJSON(w, http.StatusOK, h.feedService.GetTrades(symbol, limit))
}

func (h *Handler) Depth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "symbol is required"})
		return
	}

	depth, ok := h.feedService.GetMarketDepth(symbol)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "market depth not found"})
		return
	}

	writeJSON(w, http.StatusOK, depth)
}

// Sentiment serves symbol sentiment, or the whole-market reading when no
// symbol is given.
func (h *Handler) Sentiment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	sentiment, ok := h.feedService.GetMarketSentiment(symbol)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "sentiment not available"})
		return
	}

	writeJSON(w, http.StatusOK, sentiment)
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	writeJSON(w, http.StatusOK, h.feedService.CurrentMarketSession())
}

func (h *Handler) Connection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	writeJSON(w, http.StatusOK, h.feedService.GetConnectionStatus())
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	if err := h.feedService.Connect(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, h.feedService.GetConnectionStatus())
}

func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	h.feedService.Disconnect()
	writeJSON(w, http.StatusOK, h.feedService.GetConnectionStatus())
}

func (h *Handler) Symbols(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.feedService.SubscribedSymbols())

	case http.MethodPost:
		defer r.Body.Close()

		var req SymbolRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
			return
		}
		if strings.TrimSpace(req.Symbol) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "symbol is required"})
			return
		}

		h.feedService.SubscribeSymbol(r.Context(), req.Symbol)
		writeJSON(w, http.StatusOK, h.feedService.SubscribedSymbols())

	case http.MethodDelete:
		symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
		if symbol == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "symbol is required"})
			return
		}

		h.feedService.UnsubscribeSymbol(r.Context(), symbol)
		writeJSON(w, http.StatusOK, h.feedService.SubscribedSymbols())

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.feedService.GetAlerts())

	case http.MethodPost:
		defer r.Body.Close()

		var req CreateAlertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
			return
		}

		spec, err := mapCreateAlertRequest(&req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		created, err := h.feedService.CreateAlert(r.Context(), spec)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusCreated, created)

	case http.MethodDelete:
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "id is required"})
			return
		}

		if err := h.feedService.DeleteAlert(r.Context(), id); err != nil {
			if errors.Is(err, alert.ErrAlertNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]any{"error": "alert not found"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (h *Handler) ToggleAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	defer r.Body.Close()

	var req AlertIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "id is required"})
		return
	}

	toggled, err := h.feedService.ToggleAlert(r.Context(), req.ID)
	if err != nil {
		if errors.Is(err, alert.ErrAlertNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "alert not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, toggled)
}

func mapCreateAlertRequest(req *CreateAlertRequest) (alert.CreateSpec, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(req.Value))
	if err != nil {
		return alert.CreateSpec{}, errors.New("invalid condition value")
	}

	return alert.CreateSpec{
		Symbol: req.Symbol,
		Type:   entity.AlertType(strings.ToLower(strings.TrimSpace(req.Type))),
		Condition: entity.AlertCondition{
			Field:    entity.AlertField(strings.ToLower(strings.TrimSpace(req.Field))),
			Operator: entity.AlertOperator(strings.ToLower(strings.TrimSpace(req.Operator))),
			Value:    value,
		},
		Message:  req.Message,
		Priority: entity.AlertPriority(strings.ToLower(strings.TrimSpace(req.Priority))),
	}, nil
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveAPIKey(r *http.Request) string {
	if headerKey := strings.TrimSpace(r.Header.Get("X-API-Key")); headerKey != "" {
		return headerKey
	}

	return strings.TrimSpace(r.URL.Query().Get("api_key"))
}

func validateAPIKey(rawAPIKey string) error {
	apiKey := strings.TrimSpace(rawAPIKey)
	if apiKey == "" {
		return errAPIKeyMissing
	}

	if config.Env == nil || len(config.Env.APIKeys) == 0 {
		return errAPIKeyInvalid
	}

	now := time.Now().UTC()
	for _, candidate := range config.Env.APIKeys {
		storedKey := strings.TrimSpace(candidate.Key)
		if storedKey == "" {
			continue
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(storedKey)) != 1 {
			continue
		}

		if !candidate.Active {
			return errAPIKeyInactive
		}

		expiredAt, hasExpiry, err := parseExpiry(candidate.ExpiredAt)
		if err != nil {
			return errAPIKeyInvalid
		}
		if !hasExpiry {
			return nil
		}

		if !now.Before(expiredAt) {
			return errAPIKeyExpired
		}

		return nil
	}

	return errAPIKeyInvalid
}

func parseExpiry(value any) (time.Time, bool, error) {
	if value == nil {
		return time.Time{}, false, nil
	}

	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false, nil
		}
		return v.UTC(), true, nil
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false, nil
		}

		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed.UTC(), true, nil
		}

		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, false, err
		}

		return parsed.UTC().Add(24 * time.Hour), true, nil
	default:
		return time.Time{}, false, errors.New("unsupported expiry type")
	}
}
