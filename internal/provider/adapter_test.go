package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matchedUser() map[string]any {
	return map[string]any{
		"username": "alice",
		"profile": map[string]any{
			"realName": "Alice",
			"ranking":  1234.0,
		},
		"submitStats": map[string]any{
			"acSubmissionNum": []any{
				map[string]any{"difficulty": "All", "count": 40.0, "submissions": 60.0},
			},
		},
		"submissionCalendar": `{"1700000000": 2}`,
	}
}

func questionPool() []any {
	return []any{
		map[string]any{"difficulty": "All", "count": 3000.0},
		map[string]any{"difficulty": "Easy", "count": 800.0},
	}
}

func TestResolve_TopLevelShape(t *testing.T) {
	response := Raw{
		"matchedUser":          matchedUser(),
		"allQuestionsCount":    questionPool(),
		"recentSubmissionList": []any{map[string]any{"titleSlug": "two-sum", "timestamp": "1"}},
		"userContestRanking":   map[string]any{"rating": 1500.5},
	}

	p, err := Resolve("alice", response)
	require.NoError(t, err)

	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "Alice", p.Profile.String("realName"))
	assert.Len(t, p.AllQuestionsCount, 2)
	assert.Len(t, p.SubmitStats.Objects("acSubmissionNum"), 1)
	assert.Equal(t, `{"1700000000": 2}`, p.SubmissionCalendar)
	assert.Equal(t, 1500.5, p.ContestRanking.Float("rating"))
	require.Len(t, p.RecentSubmissions, 1)
	assert.Equal(t, "two-sum", p.RecentSubmissions[0].String("titleSlug"))
}

func TestResolve_UserAndDataShapes(t *testing.T) {
	shapes := map[string]Raw{
		"user": {"user": map[string]any{"matchedUser": matchedUser(), "allQuestionsCount": questionPool()}},
		"data": {"data": map[string]any{"matchedUser": matchedUser(), "allQuestionsCount": questionPool()}},
	}

	for name, response := range shapes {
		t.Run(name, func(t *testing.T) {
			p, err := Resolve("alice", response)
			require.NoError(t, err)
			assert.Equal(t, 1234, p.Profile.Int("ranking"))
			assert.Len(t, p.AllQuestionsCount, 2)
			assert.Nil(t, p.ContestRanking)
			assert.Empty(t, p.RecentSubmissions)
		})
	}
}

func TestResolve_TopLevelWinsOverNestedShapes(t *testing.T) {
	nested := matchedUser()
	nested["profile"] = map[string]any{"realName": "Nested"}

	response := Raw{
		"matchedUser": matchedUser(),
		"data":        map[string]any{"matchedUser": nested},
	}

	p, err := Resolve("alice", response)
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Profile.String("realName"))
}

func TestResolve_QuestionPoolNestedInMatchedUser(t *testing.T) {
	user := matchedUser()
	user["allQuestionsCount"] = questionPool()

	p, err := Resolve("alice", Raw{"matchedUser": user, "allQuestionsCount": []any{}})
	require.NoError(t, err)
	assert.Len(t, p.AllQuestionsCount, 2)
}

func TestResolve_MissingMatchedUserIsNotFound(t *testing.T) {
	for _, response := range []Raw{
		{},
		{"matchedUser": nil},
		{"data": map[string]any{"matchedUser": nil}},
		{"allQuestionsCount": questionPool()},
	} {
		_, err := Resolve("ghost", response)

		var notFound *ProfileNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "ghost", notFound.Username)
	}
}

func TestResolve_DefaultsEmptyProfileParts(t *testing.T) {
	p, err := Resolve("bare", Raw{"matchedUser": map[string]any{}})
	require.NoError(t, err)

	assert.NotNil(t, p.Profile)
	assert.NotNil(t, p.SubmitStats)
	assert.Empty(t, p.AllQuestionsCount)
	assert.Equal(t, 0, p.Profile.Int("ranking"))
}

func TestAdapter_FallsThroughFailingStrategies(t *testing.T) {
	var calls []string
	adapter := NewAdapterWithStrategies(
		NewStrategy("unavailable", nil),
		NewStrategy("errors", func(ctx context.Context, username string) (Raw, error) {
			calls = append(calls, "errors")
			return nil, errors.New("boom")
		}),
		NewStrategy("panics", func(ctx context.Context, username string) (Raw, error) {
			calls = append(calls, "panics")
			panic("nil pointer in client")
		}),
		NewStrategy("empty", func(ctx context.Context, username string) (Raw, error) {
			calls = append(calls, "empty")
			return Raw{}, nil
		}),
		NewStrategy("works", func(ctx context.Context, username string) (Raw, error) {
			calls = append(calls, "works")
			return Raw{"data": map[string]any{"matchedUser": matchedUser()}}, nil
		}),
		NewStrategy("never", func(ctx context.Context, username string) (Raw, error) {
			calls = append(calls, "never")
			return nil, nil
		}),
	)

	p, err := adapter.Fetch(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "works", p.Source)
	assert.Equal(t, []string{"errors", "panics", "empty", "works"}, calls)
}

func TestAdapter_AllStrategiesFail(t *testing.T) {
	cause := errors.New("connection refused")
	adapter := NewAdapterWithStrategies(
		NewStrategy("user", nil),
		NewStrategy("getUser", func(ctx context.Context, username string) (Raw, error) {
			return nil, cause
		}),
	)

	_, err := adapter.Fetch(context.Background(), "alice")

	var fetchErr *ProfileFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, []string{"getUser"}, fetchErr.Attempted)
	assert.Equal(t, []string{"getUser"}, fetchErr.Available)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "attempted: getUser")
}

func TestAdapter_NoStrategiesAvailable(t *testing.T) {
	_, err := NewAdapter(struct{}{}).Fetch(context.Background(), "alice")

	var fetchErr *ProfileFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Empty(t, fetchErr.Attempted)
	assert.Contains(t, err.Error(), "attempted: none; available: none")
}

func TestAdapter_NotFoundCarriesSource(t *testing.T) {
	adapter := NewAdapterWithStrategies(NewStrategy("user", func(ctx context.Context, username string) (Raw, error) {
		return Raw{"matchedUser": nil, "allQuestionsCount": questionPool()}, nil
	}))

	_, err := adapter.Fetch(context.Background(), "ghost")

	var notFound *ProfileNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "user", notFound.Source)
}

func TestAdapter_StopsOnCancelledContext(t *testing.T) {
	called := false
	adapter := NewAdapterWithStrategies(NewStrategy("user", func(ctx context.Context, username string) (Raw, error) {
		called = true
		return Raw{"matchedUser": matchedUser()}, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.Fetch(ctx, "alice")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

type graphQLOnly struct {
	requests []GraphQLRequest
}

func (g *graphQLOnly) Query(ctx context.Context, req GraphQLRequest) (Raw, error) {
	g.requests = append(g.requests, req)
	return Raw{"data": map[string]any{"matchedUser": matchedUser()}}, nil
}

type fullClient struct {
	graphQLOnly
	contest Raw
}

func (f *fullClient) UserProfile(ctx context.Context, username string) (Raw, error) {
	return Raw{"matchedUser": matchedUser(), "allQuestionsCount": questionPool()}, nil
}

func (f *fullClient) ContestRanking(ctx context.Context, username string) (Raw, error) {
	return f.contest, nil
}

func TestNewAdapter_DiscoversCapabilities(t *testing.T) {
	t.Run("generic query only", func(t *testing.T) {
		client := &graphQLOnly{}
		p, err := NewAdapter(client).Fetch(context.Background(), "alice")
		require.NoError(t, err)

		assert.Equal(t, "getUser", p.Source)
		require.Len(t, client.requests, 1)
		assert.Equal(t, "alice", client.requests[0].Variables["username"])
	})

	t.Run("dedicated profile query preferred", func(t *testing.T) {
		client := &fullClient{contest: Raw{"rating": 1800.0, "attendedContestsCount": 4.0}}
		p, err := NewAdapter(client).Fetch(context.Background(), "alice")
		require.NoError(t, err)

		assert.Equal(t, "user", p.Source)
		assert.Empty(t, client.requests)
		assert.Equal(t, 4, p.ContestRanking.Int("attendedContestsCount"))
	})
}

func TestRaw_Coercion(t *testing.T) {
	r := Raw{
		"s":     "42",
		"f":     42.9,
		"bad":   "abc",
		"b":     true,
		"nan":   "NaN",
		"obj":   map[string]any{"k": "v"},
		"arr":   []any{map[string]any{"a": 1.0}, "skip", nil},
		"nil":   nil,
		"float": "1.5",
	}

	assert.Equal(t, 42, r.Int("s"))
	assert.Equal(t, 42, r.Int("f"))
	assert.Equal(t, 0, r.Int("bad"))
	assert.Equal(t, 0, r.Int("missing"))
	assert.Equal(t, "true", r.String("b"))
	assert.Equal(t, "42.9", r.String("f"))
	assert.Equal(t, 0.0, r.Float("nan"))
	assert.Equal(t, 1.5, r.Float("float"))
	assert.Equal(t, 1, r.Int("float"))
	assert.Equal(t, "v", r.Object("obj").String("k"))
	assert.Len(t, r.Objects("arr"), 1)
	assert.Equal(t, 0, r.Int("nil"))
	assert.Equal(t, "", r.String("nil"))

	var nilRaw Raw
	assert.Nil(t, nilRaw.Object("x"))
	assert.Equal(t, "", nilRaw.String("x"))
}
