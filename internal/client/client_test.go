package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, server.Client())
}

func TestCheckFieldSendsQueryAndToken(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/check", r.URL.Path)
		assert.Equal(t, "username", r.URL.Query().Get("field"))
		assert.Equal(t, "a b", r.URL.Query().Get("value"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(FieldCheck{Valid: false, Message: "bad"})
	})
	c.SetToken("tok")

	got, err := c.CheckField(context.Background(), "username", "a b")
	require.NoError(t, err)
	assert.Equal(t, FieldCheck{Valid: false, Message: "bad"}, got)
}

func TestAPIErrorDecoding(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"UNAUTHORIZED","error":"Unauthorized"}`))
	})

	_, err := c.Chats(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
}

func TestChatsRejectsInvalidRecords(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chats":[{"id":"c1","participants":["a","b"]},{"id":"c2","participants":["a","a"]}]}`))
	})

	_, err := c.Chats(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRecord))
	assert.Contains(t, err.Error(), "item 1")
}

func TestSpaceCountsSkipsEmptyRequest(t *testing.T) {
	called := false
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	counts, err := c.SpaceCounts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, counts)
	assert.False(t, called)
}

func TestSpaceCountsDecodes(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s1,s2", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"counts":[{"spaceId":"s1","members":3,"posts":4},{"spaceId":"s2","members":0,"posts":0}]}`))
	})

	counts, err := c.SpaceCounts(context.Background(), []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Equal(t, []SpaceCount{{SpaceID: "s1", Members: 3, Posts: 4}, {SpaceID: "s2"}}, counts)
}

func TestRefreshInstallsToken(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rft", body["refreshToken"])
		_, _ = w.Write([]byte(`{"token":"new-access","refreshToken":"rft2","userId":"u1"}`))
	})

	tokens, err := c.Refresh(context.Background(), "rft")
	require.NoError(t, err)
	assert.Equal(t, "rft2", tokens.RefreshToken)
	assert.Equal(t, "new-access", c.Token())
}

func TestUserValidation(t *testing.T) {
	assert.ErrorIs(t, User{Username: "x"}.Validate(), ErrInvalidRecord)
	assert.ErrorIs(t, User{ID: "u"}.Validate(), ErrInvalidRecord)
	assert.NoError(t, User{ID: "u", Username: "x"}.Validate())
	assert.ErrorIs(t, SpaceCount{SpaceID: "s", Members: -1}.Validate(), ErrInvalidRecord)
	assert.ErrorIs(t, Chat{ID: "c", Participants: []string{"a"}, LastMessage: &Message{ID: "m"}}.Validate(), ErrInvalidRecord)
}

func TestPresenceMethodsAndValidation(t *testing.T) {
	methods := make(chan string, 3)
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		methods <- r.Method
		assert.Equal(t, "/api/presence/space:s1", r.URL.Path)
		if r.Method == http.MethodDelete {
			_, _ = w.Write([]byte(`{"channel":"space:s1","members":[{"userId":"u1"},{"userId":"u1"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"channel":"space:s1","members":[{"userId":"u1","onlineAt":"2026-03-01T12:00:00Z"}],"at":"2026-03-01T12:00:00Z"}`))
	})

	snap, err := c.TrackPresence(context.Background(), "space:s1")
	require.NoError(t, err)
	require.Len(t, snap.Members, 1)
	assert.Equal(t, "u1", snap.Members[0].UserID)

	_, err = c.Presence(context.Background(), "space:s1")
	require.NoError(t, err)

	_, err = c.UntrackPresence(context.Background(), "space:s1")
	assert.ErrorIs(t, err, ErrInvalidRecord)
	close(methods)
	var got []string
	for m := range methods {
		got = append(got, m)
	}
	assert.Equal(t, []string{http.MethodPost, http.MethodGet, http.MethodDelete}, got)
}
