package provider

import (
	"context"
)

// Capability interfaces a provider client may implement. A client that lacks one
// simply leaves the matching strategy or source unavailable.
type (
	ProfileQuerier interface {
		UserProfile(ctx context.Context, username string) (Raw, error)
	}

	GraphQLQuerier interface {
		Query(ctx context.Context, req GraphQLRequest) (Raw, error)
	}

	RecentSubmissionsQuerier interface {
		RecentSubmissions(ctx context.Context, username string, limit int) ([]Raw, error)
	}

	ContestQuerier interface {
		ContestRanking(ctx context.Context, username string) (Raw, error)
	}
)

// Strategy wraps one named retrieval operation of the provider client
type Strategy interface {
	Name() string
	Available() bool
	// TryFetch returns the raw response, ErrUnavailable, or any other error.
	// An empty response counts as a miss.
	TryFetch(ctx context.Context, username string) (Raw, error)
}

type funcStrategy struct {
	name  string
	fetch func(ctx context.Context, username string) (Raw, error)
}

// NewStrategy adapts a function into a Strategy. A nil fetch is never available.
func NewStrategy(name string, fetch func(ctx context.Context, username string) (Raw, error)) Strategy {
	return funcStrategy{name: name, fetch: fetch}
}

func (s funcStrategy) Name() string    { return s.name }
func (s funcStrategy) Available() bool { return s.fetch != nil }

func (s funcStrategy) TryFetch(ctx context.Context, username string) (Raw, error) {
	if s.fetch == nil {
		return nil, ErrUnavailable
	}
	return s.fetch(ctx, username)
}

// DefaultStrategies returns the retrieval operations in priority order:
//
//	user    - dedicated profile query, answers with the data payload (top-level shape)
//	getUser - generic query operation, answers with the whole envelope (data.* shape)
func DefaultStrategies(client any) []Strategy {
	var user, getUser func(ctx context.Context, username string) (Raw, error)

	if q, ok := client.(ProfileQuerier); ok {
		user = q.UserProfile
	}
	if q, ok := client.(GraphQLQuerier); ok {
		getUser = func(ctx context.Context, username string) (Raw, error) {
			return q.Query(ctx, UserProfileRequest(username))
		}
	}

	return []Strategy{
		NewStrategy("user", user),
		NewStrategy("getUser", getUser),
	}
}
