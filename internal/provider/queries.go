package provider

// GraphQLRequest is the body posted to the provider's GraphQL endpoint
type GraphQLRequest struct {
	OperationName string         `json:"operationName,omitempty"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
}

const userProfileQuery = `
query getUserProfile($username: String!) {
  allQuestionsCount {
    difficulty
    count
  }
  matchedUser(username: $username) {
    username
    githubUrl
    contributions {
      points
    }
    profile {
      realName
      userAvatar
      aboutMe
      countryName
      company
      school
      starRating
      reputation
      ranking
    }
    submissionCalendar
    submitStats {
      acSubmissionNum {
        difficulty
        count
        submissions
      }
      totalSubmissionNum {
        difficulty
        count
        submissions
      }
    }
    badges {
      id
      displayName
      icon
      creationDate
    }
    upcomingBadges {
      name
      icon
    }
    activeBadge {
      id
    }
  }
  recentSubmissionList(username: $username, limit: 20) {
    title
    titleSlug
    timestamp
    statusDisplay
    lang
  }
}`

const recentSubmissionsQuery = `
query recentSubmissions($username: String!, $limit: Int) {
  recentSubmissionList(username: $username, limit: $limit) {
    title
    titleSlug
    timestamp
    statusDisplay
    lang
  }
}`

const recentAcSubmissionsQuery = `
query recentAcSubmissions($username: String!, $limit: Int) {
  recentAcSubmissionList(username: $username, limit: $limit) {
    title
    titleSlug
    timestamp
    statusDisplay
    lang
  }
}`

const contestRankingQuery = `
query userContestRankingInfo($username: String!) {
  userContestRanking(username: $username) {
    attendedContestsCount
    rating
    globalRanking
  }
}`

// UserProfileRequest builds the full profile query for username
func UserProfileRequest(username string) GraphQLRequest {
	return GraphQLRequest{
		OperationName: "getUserProfile",
		Query:         userProfileQuery,
		Variables:     map[string]any{"username": username},
	}
}

// RecentSubmissionsRequest builds the recent-submission list query
func RecentSubmissionsRequest(username string, limit int) GraphQLRequest {
	return GraphQLRequest{
		OperationName: "recentSubmissions",
		Query:         recentSubmissionsQuery,
		Variables:     map[string]any{"username": username, "limit": limit},
	}
}

// RecentAcSubmissionsRequest builds the accepted-only submission list query
func RecentAcSubmissionsRequest(username string, limit int) GraphQLRequest {
	return GraphQLRequest{
		OperationName: "recentAcSubmissions",
		Query:         recentAcSubmissionsQuery,
		Variables:     map[string]any{"username": username, "limit": limit},
	}
}

// ContestRankingRequest builds the contest ranking query
func ContestRankingRequest(username string) GraphQLRequest {
	return GraphQLRequest{
		OperationName: "userContestRankingInfo",
		Query:         contestRankingQuery,
		Variables:     map[string]any{"username": username},
	}
}
