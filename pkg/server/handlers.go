package server

import (
	"net/http"
	"time"

	"github.com/elonfeng/aipulse/internal/store"
	"github.com/elonfeng/aipulse/internal/validation"
	"github.com/elonfeng/aipulse/pkg/source"
	"github.com/go-chi/chi/v5"
)

type articlesQuery struct {
	Source string    `query:"source" validate:"omitempty,oneof=hackernews arxiv rss"`
	Since  time.Time `query:"since"`
	Limit  int       `query:"limit" validate:"min=1,max=500"`
}

const maxTrendingLimit = 100

type trendingQuery struct {
	Hours   int  `query:"hours" validate:"min=1,max=168"`
	Limit   int  `query:"limit" validate:"min=1,max=100"`
	Refresh bool `query:"refresh"`
}

type reviewRequest struct {
	UserID  string `json:"user_id" validate:"required,max=128"`
	ItemID  string `json:"item_id" validate:"required,max=256"`
	Quality *int   `json:"quality" validate:"required,min=0,max=5"`
}

type dueQuery struct {
	UserID string `query:"user_id" validate:"required,max=128"`
	Limit  int    `query:"limit" validate:"min=1,max=200"`
}

type ingestRequest struct {
	ArticleID string `json:"article_id" validate:"required,max=512"`
}

type entitySearchQuery struct {
	Q     string `query:"q" validate:"max=200"`
	Limit int    `query:"limit" validate:"min=1,max=100"`
}

type neighborsQuery struct {
	Depth int `query:"depth" validate:"min=1,max=3"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := articlesQuery{Source: q.Get("source")}

	var verr *validation.RequestError
	if req.Limit, verr = queryInt(q, "limit", 100); verr != nil {
		writeValidation(w, verr)
		return
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeValidation(w, validation.Invalid("since", "must be an RFC3339 timestamp"))
			return
		}
		req.Since = t
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeValidation(w, verr)
		return
	}

	articles, err := s.deps.Articles.ListArticles(r.Context(), store.ListOpts{
		Source: source.SourceType(req.Source),
		Since:  req.Since,
		Limit:  req.Limit,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeList(w, articles)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		req  trendingQuery
		verr *validation.RequestError
	)
	if req.Hours, verr = queryInt(q, "hours", s.deps.Trends.WindowHours()); verr != nil {
		writeValidation(w, verr)
		return
	}
	if req.Limit, verr = queryInt(q, "limit", min(s.deps.Trends.Limit(), maxTrendingLimit)); verr != nil {
		writeValidation(w, verr)
		return
	}
	if req.Refresh, verr = queryBool(q, "refresh"); verr != nil {
		writeValidation(w, verr)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeValidation(w, verr)
		return
	}

	res, err := s.deps.Trends.Trending(r.Context(), req.Hours, req.Limit, req.Refresh)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	if s.deps.Collector == nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "no collectors configured")
		return
	}
	writeData(w, s.deps.Collector.Collect(r.Context()))
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if verr := decodeJSON(r, &req); verr != nil {
		writeValidation(w, verr)
		return
	}

	card, err := s.deps.Reviewer.Review(r.Context(), req.UserID, req.ItemID, *req.Quality)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeData(w, card)
}

func (s *Server) handleDue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := dueQuery{UserID: q.Get("user_id")}
	var verr *validation.RequestError
	if req.Limit, verr = queryInt(q, "limit", 50); verr != nil {
		writeValidation(w, verr)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeValidation(w, verr)
		return
	}

	cards, err := s.deps.Reviewer.Due(r.Context(), req.UserID, req.Limit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeList(w, cards)
}

func (s *Server) handleGraphIngest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "entity extraction requires an LLM api key")
		return
	}
	var req ingestRequest
	if verr := decodeJSON(r, &req); verr != nil {
		writeValidation(w, verr)
		return
	}

	res, err := s.deps.Pipeline.IngestArticle(r.Context(), req.ArticleID)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleEntitySearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := entitySearchQuery{Q: q.Get("q")}
	var verr *validation.RequestError
	if req.Limit, verr = queryInt(q, "limit", 50); verr != nil {
		writeValidation(w, verr)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeValidation(w, verr)
		return
	}

	entities, err := s.deps.Graph.Search(r.Context(), req.Q, req.Limit)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeList(w, entities)
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	var (
		req  neighborsQuery
		verr *validation.RequestError
	)
	if req.Depth, verr = queryInt(r.URL.Query(), "depth", 1); verr != nil {
		writeValidation(w, verr)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		writeValidation(w, verr)
		return
	}

	neighbors, err := s.deps.Graph.Neighbors(r.Context(), chi.URLParam(r, "id"), req.Depth)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeList(w, neighbors)
}

func (s *Server) handleRelations(w http.ResponseWriter, r *http.Request) {
	relations, err := s.deps.Graph.Relations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeList(w, relations)
}
