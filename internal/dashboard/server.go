package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/optjournal/optjournal/internal/models"
	"github.com/optjournal/optjournal/internal/stats"
	"github.com/optjournal/optjournal/internal/storage"
	"github.com/optjournal/optjournal/internal/tracklog"
)

//go:embed web/templates/*
var templateFS embed.FS

type Server struct {
	router  *chi.Mux
	server  *http.Server
	storage storage.Interface
	log     *tracklog.Store
	logger  *logrus.Logger
	addr    string
}

type DashboardData struct {
	Positions  []PositionView
	Stats      StatsView
	LastUpdate time.Time
}

// StatsView is the report preformatted for the HTML template.
type StatsView struct {
	TotalTrades int
	WinRate     string
	AvgHoldDays string
	TotalPnL    string
	AvgPnL      string
	TotalIsWin  bool
	ByStrategy  []GroupView
}

type GroupView struct {
	Key      string
	Count    int
	TotalPnL string
	AvgPnL   string
	IsWin    bool
}

type PositionView struct {
	Slug          string    `json:"slug"`
	Ticker        string    `json:"ticker"`
	Strategy      string    `json:"strategy"`
	Status        string    `json:"status"`
	Opened        string    `json:"opened"`
	Closed        string    `json:"closed,omitempty"`
	HoldDays      int       `json:"holdDays"`
	InitialCredit string    `json:"initialCredit"`
	RealizedPnL   string    `json:"realizedPnl,omitempty"`
	RollCount     int       `json:"rollCount"`
	Tags          []string  `json:"tags,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	Legs          []LegView `json:"legs"`
}

type LegView struct {
	Description string `json:"description"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	Strike      string `json:"strike"`
	Expiry      string `json:"expiry"`
	Contracts   int    `json:"contracts"`
	EntryPrice  string `json:"entryPrice"`
	Status      string `json:"status"`
}

func NewServer(addr string, store storage.Interface, log *tracklog.Store, logger *logrus.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		storage: store,
		log:     log,
		logger:  logger,
		addr:    addr,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Get("/", s.handleDashboard)
	s.router.Get("/api/positions", s.handleListPositions)
	s.router.Get("/api/positions/{slug}", s.handleGetPosition)
	s.router.Get("/api/positions/{slug}/log", s.handleGetLog)
	s.router.Get("/api/stats", s.handleGetStats)
	s.router.Get("/health", s.handleHealth)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	s.logger.Infof("Starting dashboard server on %s", s.addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	tmpl, err := template.ParseFS(templateFS, "web/templates/dashboard.html")
	if err != nil {
		s.logger.WithError(err).Error("Failed to parse dashboard template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	open, err := s.storage.ListOpen()
	if err != nil {
		s.logger.WithError(err).Error("Failed to list open positions")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	archived, err := s.storage.ListArchived()
	if err != nil {
		s.logger.WithError(err).Error("Failed to list archived positions")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data := &DashboardData{
		Positions:  toViews(open),
		Stats:      toStatsView(stats.Compute(archived)),
		LastUpdate: time.Now(),
	}
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.WithError(err).Error("Failed to execute dashboard template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// handleListPositions serves open positions by default; status=closed serves
// the archive and status=all serves both. Optional ticker and strategy
// filters are exact matches (ticker case-insensitive).
func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	var positions []*models.Position
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "open"
	}

	if status == "open" || status == "all" {
		open, err := s.storage.ListOpen()
		if err != nil {
			s.logger.WithError(err).Error("Failed to list open positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		positions = append(positions, open...)
	}
	if status == "closed" || status == "all" {
		archived, err := s.storage.ListArchived()
		if err != nil {
			s.logger.WithError(err).Error("Failed to list archived positions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		positions = append(positions, archived...)
	}

	if ticker := r.URL.Query().Get("ticker"); ticker != "" {
		positions = filterPositions(positions, func(p *models.Position) bool {
			return strings.EqualFold(p.Ticker, ticker)
		})
	}
	if strategy := r.URL.Query().Get("strategy"); strategy != "" {
		positions = filterPositions(positions, func(p *models.Position) bool {
			return p.Strategy == strategy
		})
	}

	s.writeJSON(w, toViews(positions))
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	position, err := s.storage.Get(slug)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		s.logger.WithError(err).Error("Failed to load position")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, toView(position))
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	snaps, err := s.log.Snapshots(r.Context(), slug)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load tracking log")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []tracklog.Snapshot{}
	}

	s.writeJSON(w, snaps)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	archived, err := s.storage.ListArchived()
	if err != nil {
		s.logger.WithError(err).Error("Failed to list archived positions")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, stats.Compute(archived))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func filterPositions(positions []*models.Position, keep func(*models.Position) bool) []*models.Position {
	out := positions[:0]
	for _, p := range positions {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func toStatsView(r *stats.Report) StatsView {
	view := StatsView{
		TotalTrades: r.TotalTrades,
		WinRate:     fmt.Sprintf("%.1f", r.WinRate),
		AvgHoldDays: fmt.Sprintf("%.1f", r.AvgHoldDays),
		TotalPnL:    r.TotalPnL.StringFixed(2),
		AvgPnL:      r.AvgPnL.StringFixed(2),
		TotalIsWin:  r.TotalPnL.IsPositive(),
	}
	for _, g := range r.ByStrategy {
		view.ByStrategy = append(view.ByStrategy, GroupView{
			Key:      g.Key,
			Count:    g.Count,
			TotalPnL: g.TotalPnL.StringFixed(2),
			AvgPnL:   g.AvgPnL.StringFixed(2),
			IsWin:    g.TotalPnL.IsPositive(),
		})
	}
	return view
}

func toViews(positions []*models.Position) []PositionView {
	views := make([]PositionView, 0, len(positions))
	for _, pos := range positions {
		views = append(views, toView(pos))
	}
	return views
}

func toView(pos *models.Position) PositionView {
	holdDays := pos.HoldDays()
	if pos.Closed.IsZero() {
		holdDays = int(time.Since(pos.Opened).Hours() / 24)
	}
	view := PositionView{
		Slug:          pos.Slug,
		Ticker:        pos.Ticker,
		Strategy:      pos.Strategy,
		Status:        string(pos.Status),
		Opened:        pos.Opened.Format(models.DateLayout),
		HoldDays:      holdDays,
		InitialCredit: pos.InitialCredit.StringFixed(2),
		RollCount:     pos.RollCount,
		Tags:          pos.Tags,
		Notes:         pos.Notes,
	}
	if !pos.Closed.IsZero() {
		view.Closed = pos.Closed.Format(models.DateLayout)
	}
	if pos.RealizedPnL != nil {
		view.RealizedPnL = pos.RealizedPnL.StringFixed(2)
	}
	for _, leg := range pos.Legs {
		status := string(leg.Status)
		if status == "" {
			status = "active"
		}
		view.Legs = append(view.Legs, LegView{
			Description: leg.Describe(),
			Side:        string(leg.Side),
			Type:        string(leg.Type),
			Strike:      leg.Strike.String(),
			Expiry:      leg.Expiry.Format(models.DateLayout),
			Contracts:   leg.Contracts,
			EntryPrice:  leg.EntryPrice.StringFixed(2),
			Status:      status,
		})
	}
	return view
}
