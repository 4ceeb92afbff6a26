package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"options-ledger/internal/config"
	"options-ledger/internal/domain"
	"options-ledger/internal/exchange"
	"options-ledger/internal/ingestion"
	"options-ledger/internal/ledger"
	"options-ledger/internal/storage"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// tradeResponse is the JSON form of a trade record.
type tradeResponse struct {
	ID          string              `json:"id"`
	Timestamp   int64               `json:"timestamp"`
	Symbol      string              `json:"symbol"`
	Category    domain.Category     `json:"category"`
	Type        string              `json:"type"`
	Side        string              `json:"side,omitempty"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Price       decimal.Decimal     `json:"price"`
	Fee         decimal.Decimal     `json:"fee"`
	SettleCoin  string              `json:"settle_coin"`
	OrderID     string              `json:"order_id,omitempty"`
	OrderLinkID string              `json:"order_link_id,omitempty"`
	ExecID      string              `json:"exec_id,omitempty"`
	Calculated  *calculatedResponse `json:"calculated,omitempty"`
}

type calculatedResponse struct {
	PositionAfter   decimal.Decimal `json:"position_after"`
	AvgPriceAfter   decimal.Decimal `json:"avg_price_after"`
	Realized        decimal.Decimal `json:"realized"`
	CumulativeAfter decimal.Decimal `json:"cumulative_after"`
}

func toTradeResponses(trades []*domain.TradeRecord) []tradeResponse {
	out := make([]tradeResponse, len(trades))
	for i, t := range trades {
		out[i] = tradeResponse{
			ID:          t.ID,
			Timestamp:   t.Timestamp,
			Symbol:      t.Symbol,
			Category:    t.Category,
			Type:        string(t.Type),
			Side:        string(t.Side),
			Quantity:    t.Quantity,
			Price:       t.Price,
			Fee:         t.Fee,
			SettleCoin:  t.SettleCoin,
			OrderID:     t.OrderID,
			OrderLinkID: t.OrderLinkID,
			ExecID:      t.ExecID,
		}
		if c := t.Calculated; c != nil {
			out[i].Calculated = &calculatedResponse{
				PositionAfter:   c.PositionAfter,
				AvgPriceAfter:   c.AvgPriceAfter,
				Realized:        c.Realized,
				CumulativeAfter: c.CumulativeAfter,
			}
		}
	}
	return out
}

// outcomeResponse is the JSON form of a mutation outcome.
type outcomeResponse struct {
	Skipped        bool     `json:"skipped"`
	TradesIngested int      `json:"trades_ingested,omitempty"`
	Windows        int      `json:"windows,omitempty"`
	Pages          int      `json:"pages,omitempty"`
	Exhausted      []string `json:"exhausted,omitempty"`
	Diagnostics    int      `json:"diagnostics,omitempty"`
	RecalcMode     string   `json:"recalc_mode,omitempty"`
	Replayed       int      `json:"replayed,omitempty"`
	Error          string   `json:"error,omitempty"`
}

func toOutcomeResponse(out *ledger.Outcome) outcomeResponse {
	resp := outcomeResponse{}
	if out == nil {
		return resp
	}
	resp.Skipped = out.Skipped
	if s := out.Sync; s != nil {
		resp.TradesIngested = s.TradesIngested
		resp.Windows = s.Windows
		resp.Pages = s.Pages
		resp.Diagnostics = len(s.Diagnostics)
		for _, c := range s.Exhausted {
			resp.Exhausted = append(resp.Exhausted, string(c))
		}
	}
	if r := out.Recalc; r != nil {
		resp.RecalcMode = string(r.Mode)
		resp.Replayed = r.Replayed
		resp.Diagnostics += len(r.Diagnostics)
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.ledger.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.writeBadRequest(w, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil || limit < 1 || limit > maxPageLimit {
		s.writeBadRequest(w, "invalid limit")
		return
	}

	if err := s.ledger.EnsureRange(r.Context(), offset, limit); err != nil {
		s.writeError(w, err)
		return
	}
	trades := s.ledger.GetRange(offset, limit)
	loaded, exhausted := s.ledger.ViewProgress()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"offset":    offset,
		"trades":    toTradeResponses(trades),
		"loaded":    loaded,
		"exhausted": exhausted,
	})
}

func (s *Server) handleSymbolTrades(w http.ResponseWriter, r *http.Request) {
	symbol, category, ok := s.symbolParams(w, r)
	if !ok {
		return
	}
	trades, err := s.ledger.GetTradesForSymbol(r.Context(), symbol, category)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTradeResponses(trades))
}

func (s *Server) handleSymbolRaw(w http.ResponseWriter, r *http.Request) {
	symbol, category, ok := s.symbolParams(w, r)
	if !ok {
		return
	}
	raws, err := s.ledger.GetRawJSONForSymbol(r.Context(), symbol, category)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, raws)
}

// symbolParams reads {category} and {symbol}. Category "all" matches any.
func (s *Server) symbolParams(w http.ResponseWriter, r *http.Request) (string, *domain.Category, bool) {
	symbol := chi.URLParam(r, "symbol")
	raw := chi.URLParam(r, "category")
	if strings.EqualFold(raw, "all") {
		return symbol, nil, true
	}
	cat, err := domain.ParseCategory(raw)
	if err != nil {
		s.writeBadRequest(w, err.Error())
		return "", nil, false
	}
	return symbol, &cat, true
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ledger.GetSummaryBySymbol(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handlePnl(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ledger.GetRealizedPnlBySettleCoin(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	chart, err := s.ledger.GetDailyRealizedPnlChart(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chart)
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	rows, err := s.ledger.GetDailySummaries(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.ledger.Report(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSyncForward(w http.ResponseWriter, r *http.Request) {
	out, err := s.ledger.SyncForward(r.Context())
	s.writeOutcome(w, out, err)
}

func (s *Server) handleSyncBackward(w http.ResponseWriter, r *http.Request) {
	out, err := s.ledger.SyncBackward(r.Context())
	s.writeOutcome(w, out, err)
}

func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	var from *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := config.ParseDate(v)
		if err != nil {
			s.writeBadRequest(w, err.Error())
			return
		}
		from = &t
	}
	out, err := s.ledger.Recalculate(r.Context(), from)
	s.writeOutcome(w, out, err)
}

type registrationRequest struct {
	Date string `json:"date"`
}

func (s *Server) handleRegistration(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, "invalid request body")
		return
	}
	t, err := config.ParseDate(req.Date)
	if err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}
	out, err := s.ledger.SetRegistrationDate(r.Context(), t)
	s.writeOutcome(w, out, err)
}

func (s *Server) writeOutcome(w http.ResponseWriter, out *ledger.Outcome, err error) {
	resp := toOutcomeResponse(out)
	if err != nil {
		resp.Error = err.Error()
		s.writeJSON(w, statusFor(err), resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// statusFor maps ledger errors to HTTP status codes.
func statusFor(err error) int {
	var apiErr *exchange.APIError
	switch {
	case errors.Is(err, ingestion.ErrRegistrationRequired), errors.Is(err, ingestion.ErrMissingCredentials):
		return http.StatusPreconditionFailed
	case errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}
