package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, COALESCE(auth_subject, ''), username, full_name, COALESCE(email, ''), avatar_url, bio,
	credits, is_verified, COALESCE(push_token, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.AuthSubject, &user.Username, &user.FullName, &user.Email, &user.AvatarURL,
		&user.Bio, &user.Credits, &user.IsVerified, &user.PushToken, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

// NewUserInput carries the identity provider fields used to provision a local user.
type NewUserInput struct {
	AuthSubject  string
	Email        string
	FullName     string
	AvatarURL    string
	UsernameBase string
	IsVerified   bool
}

// EnsureUserByIdentity returns the user linked to the identity provider subject, linking an
// existing account by email or inserting a new one on first login. created reports an insert.
func (s *PostgresStore) EnsureUserByIdentity(ctx context.Context, input NewUserInput) (User, bool, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE auth_subject=$1`, input.AuthSubject))
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, false, fmt.Errorf("lookup user by subject: %w", err)
	}

	if input.Email != "" {
		user, err = scanUser(s.db.QueryRowContext(ctx, `
			UPDATE users SET auth_subject=$2, updated_at=NOW()
			WHERE LOWER(email)=LOWER($1) AND auth_subject IS NULL
			RETURNING `+userColumns, input.Email, input.AuthSubject))
		if err == nil {
			return user, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return User{}, false, fmt.Errorf("link user by email: %w", err)
		}
	}

	base := input.UsernameBase
	if base == "" {
		base = "user"
	}
	for attempt := 0; attempt < 25; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s%d", base, attempt)
		}
		user, err = scanUser(s.db.QueryRowContext(ctx, `
			INSERT INTO users (auth_subject, username, full_name, email, avatar_url, is_verified)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (username) DO NOTHING
			RETURNING `+userColumns,
			input.AuthSubject, candidate, input.FullName, nullString(input.Email), input.AvatarURL, input.IsVerified))
		if err == nil {
			return user, true, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return User{}, false, fmt.Errorf("insert user: %w", err)
		}
	}
	return User{}, false, fmt.Errorf("insert user: no free username for %q", base)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

// ListUsersByCredits returns users in the server's leaderboard order.
func (s *PostgresStore) ListUsersByCredits(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY credits DESC, created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UsernameTaken(ctx context.Context, username, excludeUserID string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(username)=LOWER($1) AND ($2 = '' OR id::text <> $2))
	`, username, excludeUserID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return taken, nil
}

func (s *PostgresStore) EmailTaken(ctx context.Context, email, excludeUserID string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(email)=LOWER($1) AND ($2 = '' OR id::text <> $2))
	`, email, excludeUserID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return taken, nil
}

func (s *PostgresStore) UpdateUserProfile(ctx context.Context, userID, username, fullName, bio string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users SET username=$2, full_name=$3, bio=$4, updated_at=NOW()
		WHERE id=$1
		RETURNING `+userColumns, userID, username, fullName, bio))
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateAvatarURL(ctx context.Context, userID, avatarURL string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET avatar_url=$2, updated_at=NOW() WHERE id=$1`, userID, avatarURL)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) SetPushToken(ctx context.Context, userID, token string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET push_token=$2, updated_at=NOW() WHERE id=$1`, userID, nullString(token))
	if err != nil {
		return fmt.Errorf("set push token: %w", err)
	}
	return requireAffected(res)
}

// GetPushToken returns the recipient's device token, or "" when none is registered.
func (s *PostgresStore) GetPushToken(ctx context.Context, userID string) (string, error) {
	var token sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT push_token FROM users WHERE id=$1`, userID).Scan(&token); err != nil {
		return "", err
	}
	return strings.TrimSpace(token.String), nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) ListSpaces(ctx context.Context) ([]Space, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, COALESCE(created_by::text, ''), created_at
		FROM spaces
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer rows.Close()

	items := make([]Space, 0)
	for rows.Next() {
		var item Space
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.CreatedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetSpace(ctx context.Context, spaceID string) (Space, error) {
	var item Space
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, COALESCE(created_by::text, ''), created_at
		FROM spaces WHERE id=$1
	`, spaceID).Scan(&item.ID, &item.Name, &item.Description, &item.CreatedBy, &item.CreatedAt)
	if err != nil {
		return Space{}, err
	}
	return item, nil
}

// InsertSpace creates the space and enrolls its creator as admin.
func (s *PostgresStore) InsertSpace(ctx context.Context, item Space) (Space, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Space{}, fmt.Errorf("begin insert space: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO spaces (name, description, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, item.Name, item.Description, nullString(item.CreatedBy)).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return Space{}, fmt.Errorf("insert space: %w", err)
	}
	if item.CreatedBy != "" {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO space_members (space_id, user_id, role) VALUES ($1, $2, 'admin')
		`, item.ID, item.CreatedBy); err != nil {
			return Space{}, fmt.Errorf("insert space admin: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Space{}, fmt.Errorf("commit insert space: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteSpace(ctx context.Context, spaceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM spaces WHERE id=$1`, spaceID)
	if err != nil {
		return fmt.Errorf("delete space: %w", err)
	}
	return requireAffected(res)
}

// JoinSpace adds the user as a member and reports false when they already were one.
func (s *PostgresStore) JoinSpace(ctx context.Context, spaceID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO space_members (space_id, user_id, role) VALUES ($1, $2, 'member')
		ON CONFLICT (space_id, user_id) DO NOTHING
	`, spaceID, userID)
	if err != nil {
		return false, fmt.Errorf("join space: %w", err)
	}
	return changedRows(res)
}

// LeaveSpace removes the membership and reports false when there was none.
func (s *PostgresStore) LeaveSpace(ctx context.Context, spaceID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM space_members WHERE space_id=$1 AND user_id=$2`, spaceID, userID)
	if err != nil {
		return false, fmt.Errorf("leave space: %w", err)
	}
	return changedRows(res)
}

func changedRows(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// GetMemberRole returns the member's role in the space, or "" if not a member.
func (s *PostgresStore) GetMemberRole(ctx context.Context, spaceID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM space_members WHERE space_id=$1 AND user_id=$2`, spaceID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read member role: %w", err)
	}
	return role, nil
}

func (s *PostgresStore) SpaceMemberCount(ctx context.Context, spaceID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM space_members WHERE space_id=$1`, spaceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) SpacePostCount(ctx context.Context, spaceID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM posts WHERE space_id=$1`, spaceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertPost(ctx context.Context, item Post) (Post, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO posts (author_id, space_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, votes, created_at
	`, item.AuthorID, item.SpaceID, item.Content).Scan(&item.ID, &item.Votes, &item.CreatedAt)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (Post, error) {
	var item Post
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.author_id, u.username, p.space_id, p.content, p.votes, p.created_at
		FROM posts p JOIN users u ON u.id = p.author_id
		WHERE p.id=$1
	`, postID).Scan(&item.ID, &item.AuthorID, &item.AuthorName, &item.SpaceID, &item.Content, &item.Votes, &item.CreatedAt)
	if err != nil {
		return Post{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListPostsBySpace(ctx context.Context, spaceID string, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.author_id, u.username, p.space_id, p.content, p.votes, p.created_at
		FROM posts p JOIN users u ON u.id = p.author_id
		WHERE p.space_id=$1
		ORDER BY p.created_at DESC
		LIMIT $2
	`, spaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	items := make([]Post, 0)
	for rows.Next() {
		var item Post
		if err := rows.Scan(&item.ID, &item.AuthorID, &item.AuthorName, &item.SpaceID, &item.Content, &item.Votes, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return items, nil
}

// VotePost toggles the user's vote on a post and returns the new aggregate.
// Repeating the same direction removes the vote; the opposite direction flips it.
func (s *PostgresStore) VotePost(ctx context.Context, postID, userID string, direction int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin vote: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	err = tx.QueryRowContext(ctx, `SELECT direction FROM post_votes WHERE post_id=$1 AND user_id=$2 FOR UPDATE`, postID, userID).Scan(&existing)
	delta := 0
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO post_votes (post_id, user_id, direction) VALUES ($1, $2, $3)`, postID, userID, direction); err != nil {
			return 0, fmt.Errorf("insert vote: %w", err)
		}
		delta = direction
	case err != nil:
		return 0, fmt.Errorf("read vote: %w", err)
	case existing == direction:
		if _, err := tx.ExecContext(ctx, `DELETE FROM post_votes WHERE post_id=$1 AND user_id=$2`, postID, userID); err != nil {
			return 0, fmt.Errorf("remove vote: %w", err)
		}
		delta = -direction
	default:
		if _, err := tx.ExecContext(ctx, `UPDATE post_votes SET direction=$3 WHERE post_id=$1 AND user_id=$2`, postID, userID, direction); err != nil {
			return 0, fmt.Errorf("flip vote: %w", err)
		}
		delta = 2 * direction
	}

	var votes int
	if err := tx.QueryRowContext(ctx, `UPDATE posts SET votes=votes+$2 WHERE id=$1 RETURNING votes`, postID, delta).Scan(&votes); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit vote: %w", err)
	}
	return votes, nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, postID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id=$1`, postID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return requireAffected(res)
}

// ParticipantKey identifies a chat by its participant set, independent of order.
func ParticipantKey(participants []string) string {
	sorted := append([]string(nil), participants...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// CreateChat returns the chat for the participant set, creating it when absent.
// Participants must already be de-duplicated; their order becomes the chat's order.
func (s *PostgresStore) CreateChat(ctx context.Context, participants []string) (Chat, bool, error) {
	key := ParticipantKey(participants)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Chat{}, false, fmt.Errorf("begin create chat: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var chat Chat
	err = tx.QueryRowContext(ctx, `
		INSERT INTO chats (participant_key) VALUES ($1)
		ON CONFLICT (participant_key) DO NOTHING
		RETURNING id, created_at, updated_at
	`, key).Scan(&chat.ID, &chat.CreatedAt, &chat.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return Chat{}, false, fmt.Errorf("rollback create chat: %w", err)
		}
		existing, err := s.chatByKey(ctx, key)
		return existing, false, err
	}
	if err != nil {
		return Chat{}, false, fmt.Errorf("insert chat: %w", err)
	}
	for position, userID := range participants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_participants (chat_id, user_id, position) VALUES ($1, $2, $3)
		`, chat.ID, userID, position); err != nil {
			return Chat{}, false, fmt.Errorf("insert chat participant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Chat{}, false, fmt.Errorf("commit create chat: %w", err)
	}
	chat.Participants = participants
	return chat, true, nil
}

const chatSelect = `
	SELECT c.id, c.created_at, c.updated_at, c.last_message_id::text,
		(SELECT string_agg(cp.user_id::text, ',' ORDER BY cp.position) FROM chat_participants cp WHERE cp.chat_id = c.id),
		m.id::text, m.sender_id::text, m.body, m.is_read, m.created_at
	FROM chats c
	LEFT JOIN messages m ON m.id = c.last_message_id`

func scanChat(row rowScanner) (Chat, error) {
	var (
		chat         Chat
		lastID       sql.NullString
		participants sql.NullString
		msgID        sql.NullString
		msgSender    sql.NullString
		msgBody      sql.NullString
		msgRead      sql.NullBool
		msgCreated   sql.NullTime
	)
	if err := row.Scan(&chat.ID, &chat.CreatedAt, &chat.UpdatedAt, &lastID, &participants,
		&msgID, &msgSender, &msgBody, &msgRead, &msgCreated); err != nil {
		return Chat{}, err
	}
	if participants.Valid && participants.String != "" {
		chat.Participants = strings.Split(participants.String, ",")
	}
	if lastID.Valid {
		chat.LastMessageID = &lastID.String
	}
	if msgID.Valid {
		chat.LastMessage = &Message{
			ID:        msgID.String,
			ChatID:    chat.ID,
			SenderID:  msgSender.String,
			Body:      msgBody.String,
			IsRead:    msgRead.Bool,
			CreatedAt: msgCreated.Time,
		}
	}
	return chat, nil
}

func (s *PostgresStore) chatByKey(ctx context.Context, key string) (Chat, error) {
	return scanChat(s.db.QueryRowContext(ctx, chatSelect+` WHERE c.participant_key=$1`, key))
}

func (s *PostgresStore) GetChat(ctx context.Context, chatID string) (Chat, error) {
	return scanChat(s.db.QueryRowContext(ctx, chatSelect+` WHERE c.id=$1`, chatID))
}

func (s *PostgresStore) ListChatsForUser(ctx context.Context, userID string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx, chatSelect+`
		WHERE EXISTS (SELECT 1 FROM chat_participants p WHERE p.chat_id = c.id AND p.user_id = $1)
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	items := make([]Chat, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		items = append(items, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	unread, err := s.unreadCounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].UnreadCount = unread[items[i].ID]
	}
	return items, nil
}

func (s *PostgresStore) unreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.chat_id, count(*)
		FROM messages m
		JOIN chat_participants p ON p.chat_id = m.chat_id AND p.user_id = $1
		WHERE m.sender_id <> $1 AND NOT m.is_read
		GROUP BY m.chat_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var chatID string
		var count int
		if err := rows.Scan(&chatID, &count); err != nil {
			return nil, fmt.Errorf("scan unread: %w", err)
		}
		counts[chatID] = count
	}
	return counts, rows.Err()
}

func (s *PostgresStore) IsChatParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id=$1 AND user_id=$2)
	`, chatID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return ok, nil
}

// InsertMessage stores the message and advances the chat's last-message pointer.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg Message) (Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin insert message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (chat_id, sender_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, is_read, created_at
	`, msg.ChatID, msg.SenderID, msg.Body).Scan(&msg.ID, &msg.IsRead, &msg.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE chats SET last_message_id=$2, updated_at=$3 WHERE id=$1
	`, msg.ChatID, msg.ID, msg.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("update chat pointer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit insert message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, body, is_read, created_at
		FROM (
			SELECT id, chat_id, sender_id, body, is_read, created_at
			FROM messages WHERE chat_id=$1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		if err := rows.Scan(&item.ID, &item.ChatID, &item.SenderID, &item.Body, &item.IsRead, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

// MarkChatRead flags every message not sent by readerID as read and returns the updated rows.
func (s *PostgresStore) MarkChatRead(ctx context.Context, chatID, readerID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE messages SET is_read=TRUE
		WHERE chat_id=$1 AND sender_id<>$2 AND NOT is_read
		RETURNING id, chat_id, sender_id, body, is_read, created_at
	`, chatID, readerID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		if err := rows.Scan(&item.ID, &item.ChatID, &item.SenderID, &item.Body, &item.IsRead, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan read message: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertNotification(ctx context.Context, item Notification) (Notification, error) {
	data := item.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, actor_id, type, title, body, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, is_read, created_at
	`, item.UserID, nullString(item.ActorID), item.Type, item.Title, item.Body, []byte(data)).Scan(&item.ID, &item.IsRead, &item.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	item.Data = data
	return item, nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(actor_id::text, ''), type, title, body, data, is_read, created_at
		FROM notifications WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		var data []byte
		if err := rows.Scan(&item.ID, &item.UserID, &item.ActorID, &item.Type, &item.Title, &item.Body, &data, &item.IsRead, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		item.Data = json.RawMessage(data)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID, userID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1 AND user_id=$2`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
