// Package models defines the data model for discourse deviation detection:
// observed snapshots, expectations, deltas, clusters, and detected events.
package models

import (
	"time"
)

// AccountType classifies accounts for weighted analysis.
type AccountType string

const (
	AccountIndividual      AccountType = "individual"
	AccountCompanyOfficial AccountType = "company_official"
	AccountExecutive       AccountType = "executive"
	AccountMedia           AccountType = "media"
	AccountAnalyst         AccountType = "analyst"
	AccountInfluencer      AccountType = "influencer"
	AccountBotSuspected    AccountType = "bot_suspected"
	AccountUnknown         AccountType = "unknown"
)

// Account represents a social media account participating in discourse.
type Account struct {
	PlatformID  string `json:"platform_id" validate:"required"`
	Username    string `json:"username" validate:"required"`
	DisplayName string `json:"display_name,omitempty"`

	AccountType   AccountType `json:"account_type,omitempty"`
	Verified      bool        `json:"verified"`
	FollowerCount int         `json:"follower_count"`

	// Behavioral baseline, populated from historical analysis
	AvgPostsPerDay float64  `json:"avg_posts_per_day"`
	AvgSentiment   float64  `json:"avg_sentiment"`
	TypicalTopics  []string `json:"typical_topics,omitempty"`

	InfluenceScore float64 `json:"influence_score"`
}

// AccountID returns the platform-qualified unique identifier.
func (a Account) AccountID() string {
	return "x:" + a.PlatformID
}

// IsHighValue reports whether this account's silence would be significant.
func (a Account) IsHighValue() bool {
	switch a.AccountType {
	case AccountExecutive, AccountCompanyOfficial, AccountAnalyst:
		return true
	}
	return a.InfluenceScore > 0.7 || a.Verified
}

// Reply records one reply edge inside a conversation thread, used to derive
// voice response patterns.
type Reply struct {
	AuthorID    string `json:"author_id"`
	ResponderID string `json:"responder_id"`
}

// DiscourseSnapshot is a point-in-time capture of discourse state for one
// entity: what IS being said in [WindowStart, WindowEnd). Produced once per
// window by ingestion and consumed read-only by the detection core.
type DiscourseSnapshot struct {
	SnapshotID string `json:"snapshot_id"`
	Entity     string `json:"entity" validate:"required"`

	WindowStart time.Time `json:"window_start" validate:"required"`
	WindowEnd   time.Time `json:"window_end" validate:"required,gtfield=WindowStart"`

	TotalPosts      int `json:"total_posts" validate:"gte=0"`
	UniqueAuthors   int `json:"unique_authors" validate:"gte=0"`
	TotalEngagement int `json:"total_engagement"`

	// Topic distribution: topic id -> mention count / average sentiment
	TopicCounts     map[string]int     `json:"topic_counts,omitempty"`
	TopicSentiments map[string]float64 `json:"topic_sentiments,omitempty"`

	ActiveAccounts []Account `json:"active_accounts,omitempty"`

	// Per-account post counts in this window, keyed by account id. Optional;
	// used by baseline building when present.
	AuthorPostCounts map[string]int `json:"author_post_counts,omitempty"`

	// Reply edges observed in this window (root author -> responder).
	Replies []Reply `json:"replies,omitempty"`

	AvgSentiment float64 `json:"avg_sentiment" validate:"gte=-1,lte=1"`

	DominantTones []string `json:"dominant_tones,omitempty"`
}

// DurationMinutes returns the snapshot window length in minutes.
func (s DiscourseSnapshot) DurationMinutes() int {
	return int(s.WindowEnd.Sub(s.WindowStart).Minutes())
}

// TopicVolume returns the mention count for a topic, zero if absent.
func (s DiscourseSnapshot) TopicVolume(topicID string) int {
	return s.TopicCounts[topicID]
}

// TopicSentiment returns the average sentiment for a topic and whether the
// topic was observed at all.
func (s DiscourseSnapshot) TopicSentiment(topicID string) (float64, bool) {
	v, ok := s.TopicSentiments[topicID]
	return v, ok
}

// ActiveAccountIDs returns the set of account ids active in this window.
func (s DiscourseSnapshot) ActiveAccountIDs() map[string]bool {
	ids := make(map[string]bool, len(s.ActiveAccounts))
	for _, a := range s.ActiveAccounts {
		ids[a.AccountID()] = true
	}
	return ids
}
