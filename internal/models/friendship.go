package models

import (
	"time"
)

// Friendship is stored once per unordered pair: UserLow is always the
// lexicographically smaller identifier.
type Friendship struct {
	ID        string    `json:"id" db:"id"`
	UserLow   string    `json:"user_low" db:"user_low"`
	UserHigh  string    `json:"user_high" db:"user_high"`
	Blocked   bool      `json:"blocked" db:"blocked"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func NewFriendship(userA, userB string) *Friendship {
	low, high := userA, userB
	if high < low {
		low, high = high, low
	}
	return &Friendship{
		UserLow:  low,
		UserHigh: high,
	}
}

func (f *Friendship) Includes(userID string) bool {
	return f.UserLow == userID || f.UserHigh == userID
}

func (f *Friendship) OtherParty(userID string) string {
	if f.UserLow == userID {
		return f.UserHigh
	}
	return f.UserLow
}
