package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handlePlayerInfo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, status, err := s.players.Info(ctx, tagParam(r, "tag"), chi.URLParam(r, "fromDate"))
	s.respond(w, r, data, status, err)
}

func (s *Server) handlePlayerProgress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, status, err := s.players.ProgressData(ctx, tagParam(r, "tag"))
	s.respond(w, r, data, status, err)
}

func (s *Server) handleClanDetails(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, status, err := s.clans.Details(ctx, tagParam(r, "tag"))
	s.respond(w, r, data, status, err)
}

func (s *Server) handleClanTroops(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, status, err := s.clans.Troops(ctx, tagParam(r, "tag"))
	s.respond(w, r, data, status, err)
}

func (s *Server) handleSuperTroops(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, status, err := s.clans.SuperTroops(ctx, tagParam(r, "tag"))
	s.respond(w, r, data, status, err)
}

func (s *Server) handleClanProgress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, status, err := s.clans.Progress(ctx, tagParam(r, "tag"), chi.URLParam(r, "achievement"))
	s.respond(w, r, data, status, err)
}

func (s *Server) handleCurrentWar(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, status, err := s.clans.CurrentWar(ctx, tagParam(r, "tag"))
	s.respond(w, r, data, status, err)
}

func (s *Server) handleWarLog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, status, err := s.clans.WarLog(ctx, tagParam(r, "tag"))
	s.respond(w, r, data, status, err)
}

func (s *Server) handleWarDetail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, status, err := s.clans.WarDetail(ctx, tagParam(r, "tag"), chi.URLParam(r, "date"))
	s.respond(w, r, data, status, err)
}

func (s *Server) handleCWLList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, status, err := s.cwl.List(ctx, tagParam(r, "tag"))
	s.respond(w, r, data, status, err)
}

func (s *Server) handleCWLSeason(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, status, err := s.cwl.SeasonData(ctx, tagParam(r, "tag"), chi.URLParam(r, "season"))
	s.respond(w, r, data, status, err)
}

func (s *Server) handleCWLWarTag(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, status, err := s.cwl.WarByTag(ctx, tagParam(r, "warTag"), chi.URLParam(r, "season"))
	s.respond(w, r, data, status, err)
}

func (s *Server) handleCWLSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	data, status, err := s.cwl.Summary(ctx, tagParam(r, "tag"), chi.URLParam(r, "season"))
	s.respond(w, r, data, status, err)
}
