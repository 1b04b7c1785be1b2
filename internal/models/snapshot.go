package models

import (
	"time"

	"gorm.io/datatypes"
)

// StatusAccepted is the statusDisplay value the provider uses for a passing submission
const StatusAccepted = "Accepted"

// SubmissionRecord is one normalized submission; identity is (Timestamp, TitleSlug)
type SubmissionRecord struct {
	Title         string `json:"title"`
	TitleSlug     string `json:"titleSlug"`
	Timestamp     int64  `json:"timestamp"`
	StatusDisplay string `json:"statusDisplay"`
	Lang          string `json:"lang"`
}

// Badge is an earned provider badge
type Badge struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	Icon         string `json:"icon"`
	CreationDate string `json:"creationDate"`
}

// UpcomingBadge is a badge the user is progressing towards
type UpcomingBadge struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// ActiveBadge references the badge shown on the profile
type ActiveBadge struct {
	ID string `json:"id"`
}

// Snapshot is the persisted, normalized statistics for one provider username
type Snapshot struct {
	ID       uint   `gorm:"primarykey" json:"-"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Name     string `gorm:"not null" json:"name"`

	RealName   string  `json:"realName"`
	GithubURL  string  `json:"githubUrl"`
	UserAvatar string  `json:"userAvatar"`
	AboutMe    string  `json:"aboutMe"`
	Country    string  `json:"countryName"`
	Company    string  `json:"company"`
	School     string  `json:"school"`
	StarRating float64 `json:"starRating"`

	TotalSolved    int `gorm:"not null;index" json:"totalSolved"`
	TotalQuestions int `gorm:"not null" json:"totalQuestions"`
	EasySolved     int `gorm:"not null" json:"easySolved"`
	TotalEasy      int `gorm:"not null" json:"totalEasy"`
	MediumSolved   int `gorm:"not null" json:"mediumSolved"`
	TotalMedium    int `gorm:"not null" json:"totalMedium"`
	HardSolved     int `gorm:"not null" json:"hardSolved"`
	TotalHard      int `gorm:"not null" json:"totalHard"`

	TotalSubmissions         int `gorm:"not null" json:"totalSubmissions"`
	TotalAcceptedSubmissions int `gorm:"not null" json:"totalAcceptedSubmissions"`
	AcceptanceRate           int `gorm:"not null" json:"acceptanceRate"`

	Ranking            int `gorm:"not null;index" json:"ranking"`
	Reputation         int `gorm:"not null" json:"reputation"`
	ContributionPoints int `gorm:"not null" json:"contributionPoints"`
	Points             int `gorm:"not null" json:"points"`

	ContestParticipation int     `gorm:"not null" json:"contestParticipation"`
	ContestRating        float64 `gorm:"not null" json:"contestRating"`
	ContestGlobalRanking int     `gorm:"not null" json:"contestGlobalRanking"`

	Badges             datatypes.JSONSlice[Badge]            `json:"badges"`
	UpcomingBadges     datatypes.JSONSlice[UpcomingBadge]    `json:"upcomingBadges"`
	ActiveBadge        datatypes.JSONType[ActiveBadge]       `json:"activeBadge"`
	SubmissionCalendar datatypes.JSONType[map[string]int]    `json:"submissionCalendar"`
	RecentSubmissions  datatypes.JSONSlice[SubmissionRecord] `json:"recentSubmissions"`

	YesterdayQuestionsSolved int `gorm:"not null" json:"yesterdayQuestionsSolved"`
	TodayQuestionsSolved     int `gorm:"not null" json:"todayQuestionsSolved"`
	YesterdaySubmissions     int `gorm:"not null" json:"yesterdaySubmissions"`

	LastUpdated time.Time `gorm:"not null;index" json:"lastUpdated"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TableName specifies the table name for GORM
func (Snapshot) TableName() string {
	return "user_snapshots"
}

// NewPlaceholderSnapshot returns the minimal record written when a refresh fails,
// so the username exists with empty collections and an advanced LastUpdated.
func NewPlaceholderSnapshot(username string, at time.Time) *Snapshot {
	return &Snapshot{
		Username:           username,
		Name:               username,
		Badges:             datatypes.JSONSlice[Badge]{},
		UpcomingBadges:     datatypes.JSONSlice[UpcomingBadge]{},
		ActiveBadge:        datatypes.NewJSONType(ActiveBadge{}),
		SubmissionCalendar: datatypes.NewJSONType(map[string]int{}),
		RecentSubmissions:  datatypes.JSONSlice[SubmissionRecord]{},
		LastUpdated:        at,
	}
}
