package models

// LeaderboardEntry is derived from Question/Vote state on demand; it is never
// stored.
type LeaderboardEntry struct {
	UserID          uint   `json:"user_id"`
	DisplayName     string `json:"display_name"`
	QuestionsAsked  int    `json:"questions_asked"`
	UpvotesReceived int    `json:"upvotes_received"`
	Score           int    `json:"score"`
}
