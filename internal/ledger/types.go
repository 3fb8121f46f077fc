package ledger

import "strings"

// User is a verified Splitwise participant (the current user, a friend, or a
// group member). IDs are stable and unique across the account.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// FullName returns "first last" with missing parts trimmed away.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type Group struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Members []User `json:"members"`
}

// UserShare is one participant's line in an expense: how much they paid
// toward it and how much of it they owe. Both are two-decimal strings, the
// format the Splitwise API consumes.
type UserShare struct {
	UserID    int64
	PaidShare string
	OwedShare string
}

// ExpensePayload is a fully resolved expense, ready for create_expense.
// It is never mutated after construction; amendments build a new payload.
type ExpensePayload struct {
	Cost        string
	Description string
	GroupID     int64 // 0 means no group
	Users       []UserShare
}
