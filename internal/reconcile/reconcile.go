package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"codeboard/internal/logger"
	"codeboard/internal/models"
	"codeboard/internal/provider"
)

// MaxRecentSubmissions bounds the stored submission list
const MaxRecentSubmissions = 100

const secondsPerDay = 86400

// Reconciler merges the primary submission list with supplementary sources
type Reconciler struct {
	sources []Source
}

// New creates a reconciler over the given supplementary sources
func New(sources ...Source) *Reconciler {
	return &Reconciler{sources: sources}
}

// Result is the reconciled submission history of one user
type Result struct {
	Submissions []models.SubmissionRecord
	Calendar    map[string]int
	Window      Window
	Metrics
}

// Reconcile gathers, merges and buckets the submissions of profile relative to now
func (r *Reconciler) Reconcile(ctx context.Context, profile *provider.RawProfile, now time.Time) Result {
	lists := r.Gather(ctx, profile.Username, profile.RecentSubmissions)
	submissions := Merge(lists...)
	calendar := ParseCalendar(profile.SubmissionCalendar)
	window := NewWindow(now)

	return Result{
		Submissions: submissions,
		Calendar:    calendar,
		Window:      window,
		Metrics:     window.Metrics(submissions, calendar),
	}
}

// Gather returns the primary list followed by every supplementary list that could be fetched.
// Source failures are logged and skipped.
func (r *Reconciler) Gather(ctx context.Context, username string, primary []provider.Raw) [][]provider.Raw {
	lists := make([][]provider.Raw, 0, len(r.sources)+1)
	lists = append(lists, primary)

	for _, src := range r.sources {
		list, err := fetchSource(ctx, src, username)
		if err != nil {
			logger.Debug().Err(err).Str("username", username).Str("source", src.Name()).Msg("Supplementary submissions unavailable")
			continue
		}
		if len(list) > 0 {
			lists = append(lists, list)
		}
	}

	return lists
}

func fetchSource(ctx context.Context, src Source, username string) (list []provider.Raw, err error) {
	defer func() {
		if r := recover(); r != nil {
			list = nil
			err = fmt.Errorf("source %s panicked: %v", src.Name(), r)
		}
	}()
	return src.Submissions(ctx, username)
}

type candidate struct {
	timestamp int64
	raw       provider.Raw
}

// Merge concatenates lists, orders them newest first, drops repeated
// (timestamp, titleSlug) pairs keeping the first seen, and caps the result.
// Ties on timestamp keep their concatenation order.
func Merge(lists ...[]provider.Raw) []models.SubmissionRecord {
	var all []candidate
	for _, list := range lists {
		for _, raw := range list {
			all = append(all, candidate{timestamp: raw.Int64("timestamp"), raw: raw})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].timestamp > all[j].timestamp
	})

	seen := make(map[string]struct{}, len(all))
	out := make([]models.SubmissionRecord, 0, min(len(all), MaxRecentSubmissions))
	for _, c := range all {
		key := strconv.FormatInt(c.timestamp, 10) + "-" + c.raw.String("titleSlug")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		out = append(out, normalize(c))
		if len(out) == MaxRecentSubmissions {
			break
		}
	}

	return out
}

func normalize(c candidate) models.SubmissionRecord {
	return models.SubmissionRecord{
		Title:         c.raw.String("title"),
		TitleSlug:     c.raw.String("titleSlug"),
		Timestamp:     c.timestamp,
		StatusDisplay: c.raw.String("statusDisplay"),
		Lang:          c.raw.String("lang"),
	}
}

// Window holds the UTC day boundaries used for day-bucketed counts, in epoch seconds
type Window struct {
	YesterdayStart int64
	TodayStart     int64
}

// NewWindow computes the boundaries for the UTC day containing now
func NewWindow(now time.Time) Window {
	u := now.UTC()
	today := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).Unix()
	return Window{
		YesterdayStart: today - secondsPerDay,
		TodayStart:     today,
	}
}

// YesterdayKey is the calendar key for yesterday
func (w Window) YesterdayKey() string {
	return strconv.FormatInt(w.YesterdayStart, 10)
}

// Metrics are the day-bucketed counts derived for a snapshot
type Metrics struct {
	YesterdayQuestionsSolved int
	TodayQuestionsSolved     int
	YesterdaySubmissions     int
}

// Metrics counts distinct accepted questions per day and reads yesterday's
// submission total from the calendar, which is not capped like the list.
func (w Window) Metrics(submissions []models.SubmissionRecord, calendar map[string]int) Metrics {
	yesterday := make(map[string]struct{})
	today := make(map[string]struct{})

	for _, s := range submissions {
		if s.StatusDisplay != models.StatusAccepted {
			continue
		}
		question := s.TitleSlug
		if question == "" {
			question = s.Title
		}

		switch {
		case s.Timestamp >= w.TodayStart:
			today[question] = struct{}{}
		case s.Timestamp >= w.YesterdayStart:
			yesterday[question] = struct{}{}
		}
	}

	return Metrics{
		YesterdayQuestionsSolved: len(yesterday),
		TodayQuestionsSolved:     len(today),
		YesterdaySubmissions:     calendar[w.YesterdayKey()],
	}
}
