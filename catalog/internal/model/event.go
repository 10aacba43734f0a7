package model

import "time"

type LoanEventType string

const (
	EventBorrowed LoanEventType = "borrowed"
	EventReturned LoanEventType = "returned"
)

type LoanEvent struct {
	ID         string        `json:"id" db:"id"`
	Type       LoanEventType `json:"type" db:"type"`
	BookID     string        `json:"bookId" db:"book_id"`
	UserID     string        `json:"userId" db:"user_id"`
	UserName   string        `json:"userName" db:"user_name"`
	OccurredAt time.Time     `json:"occurredAt" db:"occurred_at"`
	DueDate    *time.Time    `json:"dueDate,omitempty" db:"due_date"`
}

type UserStats struct {
	UserID       string    `json:"userId" db:"user_id"`
	UserName     string    `json:"userName" db:"user_name"`
	Borrowed     int       `json:"borrowed" db:"borrowed"`
	Returned     int       `json:"returned" db:"returned"`
	LastActivity time.Time `json:"lastActivity" db:"last_activity"`
}
