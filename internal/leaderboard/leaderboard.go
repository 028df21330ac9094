// Package leaderboard projects the user list into the ranked top-ten shown in the app.
package leaderboard

import (
	"sort"
	"time"
)

const Size = 10

// Candidate is a user as returned by the server, already in server order.
type Candidate struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	FullName   string    `json:"fullName"`
	AvatarURL  string    `json:"avatarUrl"`
	Credits    int       `json:"credits"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Entry struct {
	Position  int    `json:"position"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl"`
	Credits   int    `json:"credits"`
}

// Project keeps verified users, orders them by credits descending with ties in server
// order, truncates to Size and numbers them from 1.
func Project(users []Candidate) []Entry {
	verified := make([]Candidate, 0, len(users))
	for _, u := range users {
		if u.IsVerified {
			verified = append(verified, u)
		}
	}
	sort.SliceStable(verified, func(i, j int) bool {
		return verified[i].Credits > verified[j].Credits
	})
	if len(verified) > Size {
		verified = verified[:Size]
	}

	entries := make([]Entry, len(verified))
	for i, u := range verified {
		entries[i] = Entry{
			Position:  i + 1,
			UserID:    u.ID,
			Username:  u.Username,
			FullName:  u.FullName,
			AvatarURL: u.AvatarURL,
			Credits:   u.Credits,
		}
	}
	return entries
}

// PositionOf returns the 1-based position of userID, or 0 when not ranked.
func PositionOf(entries []Entry, userID string) int {
	for _, e := range entries {
		if e.UserID == userID {
			return e.Position
		}
	}
	return 0
}
