package model

import "time"

const (
	VariantA = "a"
	VariantB = "b"
)

type Variant struct {
	Name    string  `json:"name"`
	Palette string  `json:"palette"`
	Font    *string `json:"font,omitempty"`
}

type ABTest struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	VariantA    Variant    `json:"variant_a"`
	VariantB    Variant    `json:"variant_b"`
	IsPublic    bool       `json:"is_public"`
	ShareCode   string     `json:"share_code"`
	VotesA      int64      `json:"votes_a"`
	VotesB      int64      `json:"votes_b"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Ended reports whether the test has an expiry at or before now.
func (t *ABTest) Ended(now time.Time) bool {
	return t.EndsAt != nil && !t.EndsAt.After(now)
}

// Open reports whether the test currently accepts votes.
func (t *ABTest) Open(now time.Time) bool {
	return t.IsPublic && !t.Ended(now)
}

type Vote struct {
	ID        string    `json:"id"`
	TestID    string    `json:"test_id"`
	VisitorID string    `json:"visitor_id"`
	Variant   string    `json:"variant"`
	CreatedAt time.Time `json:"created_at"`
}

type Tally struct {
	VotesA int64 `json:"votesA"`
	VotesB int64 `json:"votesB"`
}

type WebhookEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	ProcessedAt time.Time `json:"processed_at"`
}
