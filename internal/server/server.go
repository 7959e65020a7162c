// Package server carries the HTTP surface: the REST paths, JSON writing,
// and translation of taxonomy errors to statuses.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Ericks2008/cocapi20250719/internal/constants"
	"github.com/Ericks2008/cocapi20250719/internal/domain"
	"github.com/Ericks2008/cocapi20250719/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type Server struct {
	players *service.PlayerService
	clans   *service.ClanService
	cwl     *service.CWLService
	logger  zerolog.Logger
}

func New(players *service.PlayerService, clans *service.ClanService, cwl *service.CWLService, logger zerolog.Logger) *Server {
	return &Server{
		players: players,
		clans:   clans,
		cwl:     cwl,
		logger:  logger,
	}
}

// Router registers the API paths. Handlers catch broadly: any panic
// or unclassified error becomes a generic 500 body.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverer)

	r.Route("/api/player", func(r chi.Router) {
		r.Get("/get_player_info/{tag}", s.handlePlayerInfo)
		r.Get("/get_player_info/{tag}/{fromDate}", s.handlePlayerInfo)
		r.Get("/get_player_progress_data/{tag}", s.handlePlayerProgress)
	})

	r.Route("/api/clan", func(r chi.Router) {
		r.Get("/get_clan_details/{tag}", s.handleClanDetails)
		r.Get("/troops/{tag}", s.handleClanTroops)
		r.Get("/supertroops/{tag}", s.handleSuperTroops)
		r.Get("/progress/{tag}", s.handleClanProgress)
		r.Get("/progress/{tag}/{achievement}", s.handleClanProgress)
		r.Get("/currentwar/{tag}", s.handleCurrentWar)
		r.Get("/warlog/{tag}", s.handleWarLog)
		r.Get("/wardetail/{tag}/{date}", s.handleWarDetail)
	})

	r.Route("/api/cwl", func(r chi.Router) {
		r.Get("/get_cwl_list/{tag}", s.handleCWLList)
		r.Get("/get_cwl_season_data/{tag}", s.handleCWLSeason)
		r.Get("/get_cwl_season_data/{tag}/{season}", s.handleCWLSeason)
		r.Get("/wartag/{warTag}/{season}", s.handleCWLWarTag)
		r.Get("/summary/{tag}/{season}", s.handleCWLSummary)
	})

	return r
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("panic in handler")
				s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "An internal server error occurred."})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// tagParam normalizes a tag path segment; clients may send the '#' or its
// escaped form.
func tagParam(r *http.Request, name string) string {
	return strings.TrimPrefix(chi.URLParam(r, name), "#")
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), constants.RequestTimeout)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, data any, status int, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, status, data)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if raw, ok := data.(json.RawMessage); ok {
		_, _ = w.Write(raw)
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps a taxonomy error to its status. Internal detail is logged
// server-side; the caller only sees a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := domain.AsError(err)
	status := e.HTTPStatus()
	message := e.Message
	switch e.Kind {
	case domain.KindInternal, domain.KindUpstreamDataCorrupt:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		message = "An internal server error occurred."
	default:
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": message})
}
