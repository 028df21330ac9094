package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"campus/api/internal/rbac"
	"campus/api/internal/realtime"
	"campus/api/internal/search"
	"campus/api/internal/store"
	"golang.org/x/sync/errgroup"
)

const maxCountIDs = 50

func (s *Service) ListSpaces(ctx context.Context) ([]SpaceView, error) {
	spaces, err := s.store.ListSpaces(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]SpaceView, 0, len(spaces))
	for _, sp := range spaces {
		items = append(items, spaceView(sp))
	}
	return items, nil
}

// GetSpace returns the space with its counts and the caller's role.
func (s *Service) GetSpace(ctx context.Context, sess Session, spaceID string) (map[string]any, error) {
	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	counts, err := s.SpaceCounts(ctx, []string{spaceID})
	if err != nil {
		return nil, err
	}
	role, err := s.spaceRole(ctx, spaceID, sess.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"space":  spaceView(space),
		"counts": counts[0],
		"role":   string(role),
	}, nil
}

func (s *Service) CreateSpace(ctx context.Context, sess Session, name, description string) (SpaceView, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return SpaceView{}, invalidInput("name is required")
	}
	if len(name) > 80 {
		return SpaceView{}, invalidInput("name must be at most 80 characters")
	}
	if len(description) > 1000 {
		return SpaceView{}, invalidInput("description must be at most 1000 characters")
	}

	space, err := s.store.InsertSpace(ctx, store.Space{Name: name, Description: description, CreatedBy: sess.UserID})
	if err != nil {
		return SpaceView{}, err
	}
	view := spaceView(space)
	s.publish(ctx, "spaces", realtime.OpInsert, view)
	s.publish(ctx, "space_members", realtime.OpInsert, map[string]string{"spaceId": space.ID, "userId": sess.UserID, "role": string(rbac.RoleAdmin)})
	if s.search != nil {
		s.search.IndexSpace(search.SpaceRecord{ID: space.ID, Name: space.Name, Description: space.Description})
	}
	return view, nil
}

func (s *Service) DeleteSpace(ctx context.Context, sess Session, spaceID string) error {
	space, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return err
	}
	role, err := s.spaceRole(ctx, spaceID, sess.UserID)
	if err != nil {
		return err
	}
	if !rbac.Can(role, rbac.ActionAdmin) {
		return forbidden("Only space admins can delete a space")
	}
	if err := s.store.DeleteSpace(ctx, spaceID); err != nil {
		return err
	}
	s.publish(ctx, "spaces", realtime.OpDelete, spaceView(space))
	if s.search != nil {
		s.search.DeleteSpace(spaceID)
	}
	return nil
}

func (s *Service) JoinSpace(ctx context.Context, sess Session, spaceID string) error {
	if _, err := s.store.GetSpace(ctx, spaceID); err != nil {
		return err
	}
	joined, err := s.store.JoinSpace(ctx, spaceID, sess.UserID)
	if err != nil || !joined {
		return err
	}
	s.publish(ctx, "space_members", realtime.OpInsert, map[string]string{"spaceId": spaceID, "userId": sess.UserID, "role": string(rbac.RoleMember)})
	return nil
}

func (s *Service) LeaveSpace(ctx context.Context, sess Session, spaceID string) error {
	left, err := s.store.LeaveSpace(ctx, spaceID, sess.UserID)
	if err != nil || !left {
		return err
	}
	s.publish(ctx, "space_members", realtime.OpDelete, map[string]string{"spaceId": spaceID, "userId": sess.UserID})
	return nil
}

// SpaceCounts returns member and post totals for each id, in request order. Counts for
// different spaces are queried concurrently.
func (s *Service) SpaceCounts(ctx context.Context, spaceIDs []string) ([]SpaceCountView, error) {
	ids := make([]string, 0, len(spaceIDs))
	seen := map[string]struct{}{}
	for _, id := range spaceIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return []SpaceCountView{}, nil
	}
	if len(ids) > maxCountIDs {
		return nil, invalidInput("at most 50 space ids per request")
	}

	counts := make([]SpaceCountView, len(ids))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for i, id := range ids {
		group.Go(func() error {
			members, err := s.store.SpaceMemberCount(groupCtx, id)
			if err != nil {
				return err
			}
			posts, err := s.store.SpacePostCount(groupCtx, id)
			if err != nil {
				return err
			}
			counts[i] = SpaceCountView{SpaceID: id, Members: members, Posts: posts}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *Service) ListPosts(ctx context.Context, spaceID string, limit int) ([]PostView, error) {
	if _, err := s.store.GetSpace(ctx, spaceID); err != nil {
		return nil, err
	}
	posts, err := s.store.ListPostsBySpace(ctx, spaceID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]PostView, 0, len(posts))
	for _, p := range posts {
		items = append(items, postView(p))
	}
	return items, nil
}

func (s *Service) CreatePost(ctx context.Context, sess Session, spaceID, content string) (PostView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return PostView{}, invalidInput("content is required")
	}
	if len(content) > 2000 {
		return PostView{}, invalidInput("content must be at most 2000 characters")
	}
	if _, err := s.store.GetSpace(ctx, spaceID); err != nil {
		return PostView{}, err
	}
	role, err := s.spaceRole(ctx, spaceID, sess.UserID)
	if err != nil {
		return PostView{}, err
	}
	if !rbac.Can(role, rbac.ActionPost) {
		return PostView{}, domainError(http.StatusForbidden, "NOT_A_MEMBER", "Join the space to post", nil)
	}

	post, err := s.store.InsertPost(ctx, store.Post{AuthorID: sess.UserID, SpaceID: spaceID, Content: content})
	if err != nil {
		return PostView{}, err
	}
	post.AuthorName = sess.UserName
	view := postView(post)
	s.publish(ctx, "posts", realtime.OpInsert, view)
	s.indexPost(post)
	return view, nil
}

// VotePost toggles the caller's vote; direction is +1 or -1.
func (s *Service) VotePost(ctx context.Context, sess Session, postID string, direction int) (PostView, error) {
	if direction != 1 && direction != -1 {
		return PostView{}, invalidInput("direction must be 1 or -1")
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return PostView{}, err
	}
	votes, err := s.store.VotePost(ctx, postID, sess.UserID, direction)
	if err != nil {
		return PostView{}, err
	}
	post.Votes = votes
	view := postView(post)
	s.publish(ctx, "posts", realtime.OpUpdate, view)
	s.indexPost(post)
	return view, nil
}

// DeletePost removes a post; allowed for its author and for space moderators.
func (s *Service) DeletePost(ctx context.Context, sess Session, postID string) error {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.AuthorID != sess.UserID {
		role, err := s.spaceRole(ctx, post.SpaceID, sess.UserID)
		if err != nil {
			return err
		}
		if !rbac.Can(role, rbac.ActionModerate) {
			return forbidden("Only the author or a moderator can delete this post")
		}
	}
	if err := s.store.DeletePost(ctx, postID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	s.publish(ctx, "posts", realtime.OpDelete, postView(post))
	if s.search != nil {
		s.search.DeletePost(postID)
	}
	return nil
}
