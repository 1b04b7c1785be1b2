package models

import "time"

// Sort keys accepted by the leaderboard endpoint
const (
	SortTotal                = "total"
	SortYesterdaySubmissions = "yesterdaySubmissions"
	SortYesterdayQuestions   = "yesterdayQuestions"
	SortTodayQuestions       = "todayQuestions"
)

// AllGroups disables the group filter
const AllGroups = "All"

// UnrankedPosition is reported for users the provider has not ranked yet
const UnrankedPosition = 2147483647

// LeaderboardQuery holds the parsed query string of GET /leaderboard
type LeaderboardQuery struct {
	Page   int    `validate:"min=1,max=100000"`
	Limit  int    `validate:"min=1,max=100"`
	SortBy string `validate:"oneof=total yesterdaySubmissions yesterdayQuestions todayQuestions"`
	Group  string `validate:"max=120"`
	Search string `validate:"max=100"`
}

// LeaderboardEntry is one registered user joined with their snapshot, if any
type LeaderboardEntry struct {
	ID                       string  `json:"id"`
	Name                     string  `json:"name"`
	Group                    string  `gorm:"column:group_name" json:"group"`
	ProfileURL               string  `json:"profileUrl"`
	ProfileID                string  `json:"profileId"`
	UserAvatar               string  `json:"userAvatar"`
	CountryName              string  `json:"countryName"`
	School                   string  `json:"school"`
	TotalSolved              int     `json:"totalSolved"`
	Ranking                  int     `json:"ranking"`
	AcceptanceRate           int     `json:"acceptanceRate"`
	EasySolved               int     `json:"easySolved"`
	MediumSolved             int     `json:"mediumSolved"`
	HardSolved               int     `json:"hardSolved"`
	ContestRating            float64 `json:"contestRating"`
	Reputation               int     `json:"reputation"`
	YesterdayQuestionsSolved int     `json:"yesterdayQuestionsSolved"`
	TodayQuestionsSolved     int     `json:"todayQuestionsSolved"`
	YesterdaySubmissions     int     `json:"yesterdaySubmissions"`
}

// Pagination describes the page returned by the leaderboard endpoint
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// LeaderboardMeta carries the day boundary the counts were computed against
type LeaderboardMeta struct {
	YesterdayDate      string     `json:"yesterdayDate"`
	YesterdayTimestamp int64      `json:"yesterdayTimestamp"`
	Pagination         Pagination `json:"pagination"`
}

// LeaderboardResponse represents the paginated leaderboard response
type LeaderboardResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Data    []LeaderboardEntry `json:"data"`
	Meta    LeaderboardMeta    `json:"meta"`
}

// SnapshotResponse wraps a single-user lookup
type SnapshotResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Data    *Snapshot `json:"data"`
}

// RankResponse represents the response for a rank lookup
type RankResponse struct {
	GlobalRank  int    `json:"globalRank"`
	Username    string `json:"username"`
	TotalSolved int    `json:"totalSolved"`
}

// RefreshFailure records one user whose refresh did not complete
type RefreshFailure struct {
	Username string `json:"username"`
	Error    string `json:"error"`
}

// RefreshSummary is the outcome of one refresh batch
type RefreshSummary struct {
	Updated    int              `json:"updated"`
	Failed     int              `json:"failed"`
	Users      []string         `json:"users"`
	TotalUsers int64            `json:"totalUsers"`
	Errors     []RefreshFailure `json:"errors,omitempty"`
	Message    string           `json:"message,omitempty"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
}

// CronStats describes the refresh rotation driven by the cron endpoint
type CronStats struct {
	TotalUsers         int64  `json:"totalUsers"`
	BatchSize          int    `json:"batchSize"`
	EstimatedCycleTime string `json:"estimatedCycleTime"`
}

// CronUpdateResponse is returned by GET /cron-update
type CronUpdateResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Stats   CronStats       `json:"stats"`
	Data    *RefreshSummary `json:"data"`
}
