package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultPost  ResultType = "post"
	ResultSpace ResultType = "space"
	ResultUser  ResultType = "user"
)

// ParseResultType returns the type for a query parameter; unknown values search everything.
func ParseResultType(value string) ResultType {
	switch ResultType(value) {
	case ResultPost, ResultSpace, ResultUser:
		return ResultType(value)
	default:
		return ""
	}
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	SpaceID string     `json:"spaceId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterType    ResultType // empty = all types
	FilterSpaceID string
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexPost(p PostRecord) error
	IndexSpace(s SpaceRecord) error
	IndexUser(u UserRecord) error
	DeletePost(id string) error
	DeleteSpace(id string) error
}

// PostRecord is the data we index for a post.
type PostRecord struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	SpaceID  string `json:"spaceId"`
	AuthorID string `json:"authorId"`
	Votes    int    `json:"votes"`
}

// SpaceRecord is the data we index for a space.
type SpaceRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UserRecord is the data we index for a user.
type UserRecord struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
}
