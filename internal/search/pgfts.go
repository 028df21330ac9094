package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// buildQuery assembles the UNION ALL over the selected entity types. Posts and spaces use
// their generated tsvector columns; users match on username/full name substrings.
func buildQuery(q Query) (string, string, []any) {
	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultPost {
		where := "p.fts @@ " + tsQuery
		if q.FilterSpaceID != "" {
			where += fmt.Sprintf(" AND p.space_id::text = $%d", argN)
			args = append(args, q.FilterSpaceID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'post'::text AS type, p.id::text AS id, left(p.content, 80) AS title,
				ts_headline('english', p.content, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.space_id::text AS space_id,
				ts_rank(p.fts, %s)::real AS rank
			FROM posts p
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if q.FilterSpaceID == "" && (q.FilterType == "" || q.FilterType == ResultSpace) {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'space'::text AS type, s.id::text AS id, s.name AS title,
				ts_headline('english', s.description, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS space_id,
				ts_rank(s.fts, %s)::real AS rank
			FROM spaces s
			WHERE s.fts @@ %s`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterSpaceID == "" && (q.FilterType == "" || q.FilterType == ResultUser) {
		subQueries = append(subQueries, `
			SELECT 'user'::text AS type, u.id::text AS id, u.username AS title,
				u.full_name AS snippet,
				''::text AS space_id,
				(CASE WHEN LOWER(u.username) = LOWER($1) THEN 1.0 ELSE 0.1 END)::real AS rank
			FROM users u
			WHERE u.username ILIKE '%' || $1 || '%' OR u.full_name ILIKE '%' || $1 || '%'`)
	}

	if len(subQueries) == 0 {
		return "", "", nil
	}
	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, space_id FROM (%s) sub ORDER BY rank DESC`, union)
	return countSQL, dataSQL, args
}

// Search executes the union query with plainto_tsquery and ts_rank.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	countSQL, dataSQL, args := buildQuery(q)
	if countSQL == "" {
		return nil, 0, nil
	}
	dataSQL += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.SpaceID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]PostRecord, []SpaceRecord, []UserRecord, error) {
	postRows, err := p.db.QueryContext(ctx, `SELECT id::text, content, space_id::text, author_id::text, votes FROM posts`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load posts: %w", err)
	}
	defer postRows.Close()

	posts := make([]PostRecord, 0)
	for postRows.Next() {
		var r PostRecord
		if err := postRows.Scan(&r.ID, &r.Content, &r.SpaceID, &r.AuthorID, &r.Votes); err != nil {
			return nil, nil, nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, r)
	}
	if err := postRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate posts: %w", err)
	}

	spaceRows, err := p.db.QueryContext(ctx, `SELECT id::text, name, description FROM spaces`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load spaces: %w", err)
	}
	defer spaceRows.Close()

	spaces := make([]SpaceRecord, 0)
	for spaceRows.Next() {
		var r SpaceRecord
		if err := spaceRows.Scan(&r.ID, &r.Name, &r.Description); err != nil {
			return nil, nil, nil, fmt.Errorf("scan space: %w", err)
		}
		spaces = append(spaces, r)
	}
	if err := spaceRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate spaces: %w", err)
	}

	userRows, err := p.db.QueryContext(ctx, `SELECT id::text, username, full_name FROM users`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load users: %w", err)
	}
	defer userRows.Close()

	users := make([]UserRecord, 0)
	for userRows.Next() {
		var r UserRecord
		if err := userRows.Scan(&r.ID, &r.Username, &r.FullName); err != nil {
			return nil, nil, nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, r)
	}
	if err := userRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate users: %w", err)
	}

	return posts, spaces, users, nil
}
