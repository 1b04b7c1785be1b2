package provider

import (
	"context"
	"errors"
	"fmt"

	"codeboard/internal/logger"
)

// RawProfile is the provider response after shape resolution
type RawProfile struct {
	Username string
	// Source names the strategy whose response was used
	Source string

	AllQuestionsCount  []Raw
	MatchedUser        Raw
	Profile            Raw
	SubmitStats        Raw
	SubmissionCalendar any
	ContestRanking     Raw

	// RecentSubmissions is the primary submission list carried by the profile response
	RecentSubmissions []Raw
}

// Adapter resolves a username into a RawProfile using an ordered list of strategies
type Adapter struct {
	strategies []Strategy
	contest    ContestQuerier
}

// NewAdapter builds an adapter over whatever capabilities client exposes
func NewAdapter(client any) *Adapter {
	a := NewAdapterWithStrategies(DefaultStrategies(client)...)
	if q, ok := client.(ContestQuerier); ok {
		a.contest = q
	}
	return a
}

// NewAdapterWithStrategies builds an adapter over explicit strategies, tried in order
func NewAdapterWithStrategies(strategies ...Strategy) *Adapter {
	return &Adapter{strategies: strategies}
}

// Fetch returns the resolved profile for username.
// It fails with *ProfileFetchError when no strategy produced a response and
// with *ProfileNotFoundError when the response carries no matched user.
func (a *Adapter) Fetch(ctx context.Context, username string) (*RawProfile, error) {
	response, source, err := a.firstResponse(ctx, username)
	if err != nil {
		return nil, err
	}

	profile, err := Resolve(username, response)
	if err != nil {
		var notFound *ProfileNotFoundError
		if errors.As(err, &notFound) {
			notFound.Source = source
		}
		return nil, err
	}
	profile.Source = source

	if profile.ContestRanking == nil && a.contest != nil {
		ranking, err := a.contest.ContestRanking(ctx, username)
		if err != nil {
			logger.Debug().Err(err).Str("username", username).Msg("Contest ranking unavailable")
		} else {
			profile.ContestRanking = ranking
		}
	}

	return profile, nil
}

func (a *Adapter) firstResponse(ctx context.Context, username string) (Raw, string, error) {
	var attempted, available []string
	var lastErr error

	for _, s := range a.strategies {
		if !s.Available() {
			continue
		}
		available = append(available, s.Name())

		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		attempted = append(attempted, s.Name())
		response, err := tryFetch(ctx, s, username)
		if err != nil {
			lastErr = err
			logger.Debug().Err(err).Str("username", username).Str("strategy", s.Name()).Msg("Provider strategy failed")
			continue
		}
		if len(response) == 0 {
			continue
		}
		return response, s.Name(), nil
	}

	return nil, "", &ProfileFetchError{
		Username:  username,
		Attempted: attempted,
		Available: available,
		Cause:     lastErr,
	}
}

// tryFetch isolates a strategy so a panic in one client operation moves on to the next
func tryFetch(ctx context.Context, s Strategy, username string) (response Raw, err error) {
	defer func() {
		if r := recover(); r != nil {
			response = nil
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.TryFetch(ctx, username)
}

// accessor reads one candidate location of a field from a raw response
type accessor func(Raw) any

// pathsFor returns the lookup chain for key: top-level, then user.key, then data.key
func pathsFor(key string) []accessor {
	return []accessor{
		func(r Raw) any { return r[key] },
		func(r Raw) any { return r.Object("user")[key] },
		func(r Raw) any { return r.Object("data")[key] },
	}
}

func firstObject(r Raw, chain []accessor) Raw {
	for _, get := range chain {
		if obj, ok := asObject(get(r)); ok {
			return obj
		}
	}
	return nil
}

func firstArray(r Raw, chain []accessor) ([]any, bool) {
	for _, get := range chain {
		if arr, ok := get(r).([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

func asObject(v any) (Raw, bool) {
	switch obj := v.(type) {
	case map[string]any:
		return Raw(obj), true
	case Raw:
		return obj, obj != nil
	}
	return nil, false
}

// Resolve locates the profile parts inside a provider response of any known shape
func Resolve(username string, response Raw) (*RawProfile, error) {
	matched := firstObject(response, pathsFor("matchedUser"))
	if matched == nil {
		return nil, &ProfileNotFoundError{Username: username}
	}

	allQuestions, found := firstArray(response, pathsFor("allQuestionsCount"))
	if !found || len(allQuestions) == 0 {
		// Some shapes nest the question pool inside the matched user
		if nested := matched.Array("allQuestionsCount"); nested != nil {
			allQuestions = nested
		}
	}

	profile := &RawProfile{
		Username:           username,
		AllQuestionsCount:  objects(allQuestions),
		MatchedUser:        matched,
		Profile:            matched.Object("profile"),
		SubmitStats:        matched.Object("submitStats"),
		SubmissionCalendar: matched["submissionCalendar"],
		ContestRanking:     firstObject(response, pathsFor("userContestRanking")),
		RecentSubmissions:  primarySubmissions(response, matched),
	}
	if profile.Profile == nil {
		profile.Profile = Raw{}
	}
	if profile.SubmitStats == nil {
		profile.SubmitStats = Raw{}
	}

	return profile, nil
}

// primarySubmissions picks the first submission list present in the response
func primarySubmissions(response, matched Raw) []Raw {
	chain := append(pathsFor("recentSubmissionList"),
		func(Raw) any { return matched["recentSubmissionList"] },
		func(r Raw) any { return r["recentSubmissions"] },
	)
	if list, ok := firstArray(response, chain); ok {
		return objects(list)
	}
	return nil
}
