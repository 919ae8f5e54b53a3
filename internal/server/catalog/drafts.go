package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/goldflix/goldflix/internal/common"
	"github.com/goldflix/goldflix/internal/kv"
	"github.com/goldflix/goldflix/internal/server/models"
)

// Drafts share the movie shape but live under their own prefix and join no
// index until published.

func (s *Service) SaveDraft(ctx context.Context, movie *models.Movie) error {
	if movie.ID == "" {
		return fmt.Errorf("%w: empty draft id", common.ErrInvalidInput)
	}
	if movie.CreatedAt == 0 {
		movie.CreatedAt = s.now().UnixMilli()
	}
	if err := kv.PutJSON(ctx, s.store, draftKey(movie.ID), movie); err != nil {
		return fmt.Errorf("save draft %s: %w", movie.ID, err)
	}
	return nil
}

func (s *Service) GetDraft(ctx context.Context, id string) (*models.Movie, error) {
	var movie models.Movie
	if err := kv.GetJSON(ctx, s.store, draftKey(id), &movie); err != nil {
		return nil, err
	}
	return &movie, nil
}

func (s *Service) DeleteDraft(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, draftKey(id)); err != nil {
		return fmt.Errorf("delete draft %s: %w", id, err)
	}
	return nil
}

// ListDrafts returns every draft, newest first.
func (s *Service) ListDrafts(ctx context.Context) ([]models.Movie, error) {
	entries, err := s.store.List(ctx, kv.ListOptions{Prefix: kv.K(PrefixDrafts)})
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	drafts := make([]models.Movie, 0, len(entries))
	for _, e := range entries {
		var movie models.Movie
		if err := unmarshalEntry(e, &movie); err != nil {
			s.log.Warn(ctx, "skipping unreadable draft", "key", e.Key.String(), "error", err)
			continue
		}
		drafts = append(drafts, movie)
	}
	sort.Slice(drafts, func(i, j int) bool { return drafts[i].CreatedAt > drafts[j].CreatedAt })
	return drafts, nil
}

// Publish moves one draft into the live catalog.
func (s *Service) Publish(ctx context.Context, id string) error {
	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Save(ctx, draft); err != nil {
		return err
	}
	return s.DeleteDraft(ctx, id)
}

// PublishAll publishes every draft and returns how many went live.
func (s *Service) PublishAll(ctx context.Context) (int, error) {
	drafts, err := s.ListDrafts(ctx)
	if err != nil {
		return 0, err
	}
	published := 0
	for i := range drafts {
		if err := s.Save(ctx, &drafts[i]); err != nil {
			return published, err
		}
		if err := s.DeleteDraft(ctx, drafts[i].ID); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}
