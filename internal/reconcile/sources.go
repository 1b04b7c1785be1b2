package reconcile

import (
	"context"

	"codeboard/internal/provider"
)

// DefaultSupplementaryLimit caps each supplementary submission fetch
const DefaultSupplementaryLimit = 50

// Source is a best-effort supplementary submission list
type Source interface {
	Name() string
	Submissions(ctx context.Context, username string) ([]provider.Raw, error)
}

// SourceFunc adapts a function into a Source
type SourceFunc struct {
	SourceName string
	Fetch      func(ctx context.Context, username string) ([]provider.Raw, error)
}

func (s SourceFunc) Name() string { return s.SourceName }

func (s SourceFunc) Submissions(ctx context.Context, username string) ([]provider.Raw, error) {
	if s.Fetch == nil {
		return nil, provider.ErrUnavailable
	}
	return s.Fetch(ctx, username)
}

// DefaultSources returns the supplementary lists the client can serve:
// the recent-submission list and the accepted-only list from a raw GraphQL query.
func DefaultSources(client any, limit int) []Source {
	if limit <= 0 {
		limit = DefaultSupplementaryLimit
	}

	var sources []Source

	if q, ok := client.(provider.RecentSubmissionsQuerier); ok {
		sources = append(sources, SourceFunc{
			SourceName: "recentSubmissions",
			Fetch: func(ctx context.Context, username string) ([]provider.Raw, error) {
				return q.RecentSubmissions(ctx, username, limit)
			},
		})
	}

	if q, ok := client.(provider.GraphQLQuerier); ok {
		sources = append(sources, SourceFunc{
			SourceName: "recentAcSubmissions",
			Fetch: func(ctx context.Context, username string) ([]provider.Raw, error) {
				envelope, err := q.Query(ctx, provider.RecentAcSubmissionsRequest(username, limit))
				if err != nil {
					return nil, err
				}
				return envelope.Object("data").Objects("recentAcSubmissionList"), nil
			},
		})
	}

	return sources
}
