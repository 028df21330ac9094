package search

import (
	"context"

	"go.uber.org/zap"
)

type fallbackSearcher interface {
	Searcher
	LoadAllRecords(ctx context.Context) ([]PostRecord, []SpaceRecord, []UserRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili  *Meili
	pgfts  fallbackSearcher
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts fallbackSearcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, pgfts: pgfts, logger: logger}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("search: meilisearch error, falling back to pgfts", zap.Error(err))
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(q)
	if err != nil {
		s.logger.Error("search: pgfts error", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

func (s *Service) indexing() bool {
	return s.meili != nil && s.meili.Healthy()
}

// IndexPost indexes a post (fire-and-forget to Meilisearch).
func (s *Service) IndexPost(p PostRecord) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.IndexPost(p); err != nil {
			s.logger.Warn("search: index post", zap.String("id", p.ID), zap.Error(err))
		}
	}()
}

// IndexSpace indexes a space (fire-and-forget to Meilisearch).
func (s *Service) IndexSpace(sp SpaceRecord) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.IndexSpace(sp); err != nil {
			s.logger.Warn("search: index space", zap.String("id", sp.ID), zap.Error(err))
		}
	}()
}

// IndexUser indexes a user profile (fire-and-forget to Meilisearch).
func (s *Service) IndexUser(u UserRecord) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.IndexUser(u); err != nil {
			s.logger.Warn("search: index user", zap.String("id", u.ID), zap.Error(err))
		}
	}()
}

// DeletePost removes a post from the search index (fire-and-forget).
func (s *Service) DeletePost(id string) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.DeletePost(id); err != nil {
			s.logger.Warn("search: delete post", zap.String("id", id), zap.Error(err))
		}
	}()
}

// DeleteSpace removes a space from the search index (fire-and-forget).
func (s *Service) DeleteSpace(id string) {
	if !s.indexing() {
		return
	}
	go func() {
		if err := s.meili.DeleteSpace(id); err != nil {
			s.logger.Warn("search: delete space", zap.String("id", id), zap.Error(err))
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.indexing() || s.pgfts == nil {
		return
	}
	posts, spaces, users, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Error("search: reindex load failed", zap.Error(err))
		return
	}
	if err := s.meili.IndexAll(posts, spaces, users); err != nil {
		s.logger.Error("search: reindex failed", zap.Error(err))
	}
}

// Close stops the Meilisearch health loop, if any.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
