package search

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeFallback struct {
	searchFn func(q Query) ([]Result, int, error)
}

func (f fakeFallback) Search(q Query) ([]Result, int, error) { return f.searchFn(q) }
func (f fakeFallback) Healthy() bool                         { return true }
func (f fakeFallback) LoadAllRecords(context.Context) ([]PostRecord, []SpaceRecord, []UserRecord, error) {
	return nil, nil, nil, nil
}

func TestServiceFallsBackToPostgresWithoutMeili(t *testing.T) {
	var got Query
	svc := NewService(nil, fakeFallback{searchFn: func(q Query) ([]Result, int, error) {
		got = q
		return []Result{{Type: ResultPost, ID: "p1"}}, 1, nil
	}}, nil)

	resp := svc.Search(Query{Text: "robotics", FilterType: ResultPost})
	if resp.Total != 1 || len(resp.Results) != 1 || resp.Results[0].ID != "p1" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.Text != "robotics" || got.FilterType != ResultPost {
		t.Fatalf("query not forwarded: %+v", got)
	}
}

func TestServiceReturnsEmptyResultsOnError(t *testing.T) {
	svc := NewService(nil, fakeFallback{searchFn: func(Query) ([]Result, int, error) {
		return nil, 0, errors.New("boom")
	}}, nil)

	resp := svc.Search(Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("expected empty non-nil results, got %+v", resp)
	}
}

func TestBuildQuerySpaceFilterOnlySearchesPosts(t *testing.T) {
	countSQL, dataSQL, args := buildQuery(Query{Text: "x", FilterSpaceID: "space-1"})
	if !strings.Contains(dataSQL, "FROM posts") {
		t.Fatalf("expected posts subquery: %s", dataSQL)
	}
	if strings.Contains(dataSQL, "FROM spaces") || strings.Contains(dataSQL, "FROM users") {
		t.Fatalf("space filter should exclude spaces and users: %s", dataSQL)
	}
	if !strings.HasPrefix(countSQL, "SELECT count(*)") {
		t.Fatalf("unexpected count query: %s", countSQL)
	}
	if len(args) != 2 || args[1] != "space-1" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestBuildQueryTypeFilter(t *testing.T) {
	_, dataSQL, args := buildQuery(Query{Text: "ana", FilterType: ResultUser})
	if !strings.Contains(dataSQL, "FROM users") || strings.Contains(dataSQL, "FROM posts") {
		t.Fatalf("expected user-only query: %s", dataSQL)
	}
	if len(args) != 1 {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestParseResultType(t *testing.T) {
	if ParseResultType("space") != ResultSpace {
		t.Fatal("expected space")
	}
	if ParseResultType("document") != "" {
		t.Fatal("unknown types should search everything")
	}
}
