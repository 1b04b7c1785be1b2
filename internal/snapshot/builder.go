package snapshot

import (
	"math"
	"time"

	"codeboard/internal/models"
	"codeboard/internal/provider"
	"codeboard/internal/reconcile"

	"gorm.io/datatypes"
)

// Gamification weights per solved question
const (
	EasyPoints   = 2
	MediumPoints = 5
	HardPoints   = 10
)

const (
	difficultyEasy   = "Easy"
	difficultyMedium = "Medium"
	difficultyHard   = "Hard"
	difficultyAll    = "All"
)

// Build assembles the persisted snapshot from a resolved profile and its
// reconciled submissions, stamped with now.
func Build(p *provider.RawProfile, result reconcile.Result, now time.Time) *models.Snapshot {
	s := &models.Snapshot{Username: p.Username}

	info := p.Profile
	s.RealName = info.String("realName")
	s.Name = s.RealName
	if s.Name == "" {
		s.Name = p.Username
	}
	s.GithubURL = p.MatchedUser.String("githubUrl")
	s.UserAvatar = info.String("userAvatar")
	s.AboutMe = info.String("aboutMe")
	s.Country = info.String("countryName")
	s.Company = info.String("company")
	s.School = info.String("school")
	s.StarRating = info.Float("starRating")
	s.Ranking = info.Int("ranking")
	s.Reputation = info.Int("reputation")
	s.ContributionPoints = p.MatchedUser.Object("contributions").Int("points")

	for _, stat := range p.SubmitStats.Objects("acSubmissionNum") {
		switch stat.String("difficulty") {
		case difficultyEasy:
			s.EasySolved = stat.Int("count")
		case difficultyMedium:
			s.MediumSolved = stat.Int("count")
		case difficultyHard:
			s.HardSolved = stat.Int("count")
		case difficultyAll:
			s.TotalSolved = stat.Int("count")
			s.TotalAcceptedSubmissions = stat.Int("submissions")
		}
	}

	for _, stat := range p.SubmitStats.Objects("totalSubmissionNum") {
		if stat.String("difficulty") == difficultyAll {
			s.TotalSubmissions = stat.Int("submissions")
		}
	}

	for _, stat := range p.AllQuestionsCount {
		switch stat.String("difficulty") {
		case difficultyEasy:
			s.TotalEasy = stat.Int("count")
		case difficultyMedium:
			s.TotalMedium = stat.Int("count")
		case difficultyHard:
			s.TotalHard = stat.Int("count")
		case difficultyAll:
			s.TotalQuestions = stat.Int("count")
		}
	}

	s.AcceptanceRate = AcceptanceRate(s.TotalAcceptedSubmissions, s.TotalSubmissions)
	s.Points = Points(s.EasySolved, s.MediumSolved, s.HardSolved)

	if contest := p.ContestRanking; contest != nil {
		s.ContestParticipation = contest.Int("attendedContestsCount")
		s.ContestRating = contest.Float("rating")
		s.ContestGlobalRanking = contest.Int("globalRanking")
	}

	s.Badges = badges(p.MatchedUser.Objects("badges"))
	s.UpcomingBadges = upcomingBadges(p.MatchedUser.Objects("upcomingBadges"))
	s.ActiveBadge = datatypes.NewJSONType(models.ActiveBadge{ID: p.MatchedUser.Object("activeBadge").String("id")})

	calendar := result.Calendar
	if calendar == nil {
		calendar = map[string]int{}
	}
	s.SubmissionCalendar = datatypes.NewJSONType(calendar)

	submissions := result.Submissions
	if submissions == nil {
		submissions = []models.SubmissionRecord{}
	}
	s.RecentSubmissions = datatypes.JSONSlice[models.SubmissionRecord](submissions)
	s.YesterdayQuestionsSolved = result.YesterdayQuestionsSolved
	s.TodayQuestionsSolved = result.TodayQuestionsSolved
	s.YesterdaySubmissions = result.YesterdaySubmissions

	s.LastUpdated = now.UTC()

	return s
}

// AcceptanceRate is the rounded percentage of accepted submissions; 0 when nothing was submitted
func AcceptanceRate(accepted, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(accepted) / float64(total) * 100))
}

// Points is the gamified score of a solved-question mix
func Points(easy, medium, hard int) int {
	return hard*HardPoints + medium*MediumPoints + easy*EasyPoints
}

func badges(raw []provider.Raw) datatypes.JSONSlice[models.Badge] {
	out := make(datatypes.JSONSlice[models.Badge], 0, len(raw))
	for _, b := range raw {
		out = append(out, models.Badge{
			ID:           b.String("id"),
			DisplayName:  b.String("displayName"),
			Icon:         b.String("icon"),
			CreationDate: b.String("creationDate"),
		})
	}
	return out
}

func upcomingBadges(raw []provider.Raw) datatypes.JSONSlice[models.UpcomingBadge] {
	out := make(datatypes.JSONSlice[models.UpcomingBadge], 0, len(raw))
	for _, b := range raw {
		out = append(out, models.UpcomingBadge{
			Name: b.String("name"),
			Icon: b.String("icon"),
		})
	}
	return out
}
