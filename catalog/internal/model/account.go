package model

import (
	"time"

	"github.com/Astemirdum/library-catalog/catalog/internal/errs"
)

type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleMember Role = "Member"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

func (r Role) BorrowLimit() int {
	if r == RoleAdmin {
		return 10
	}
	return 5
}

type BorrowedItem struct {
	UserID     string    `json:"-" db:"user_id"`
	BookID     string    `json:"bookId" db:"book_id"`
	BorrowedAt time.Time `json:"borrowedAt" db:"borrowed_at"`
	DueDate    time.Time `json:"dueDate" db:"due_date"`
	Position   int       `json:"-" db:"position"`
}

type Account struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	IsActive     bool      `json:"isActive" db:"is_active"`
	Version      int64     `json:"-" db:"version"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`

	BorrowedBooks []BorrowedItem `json:"borrowedBooks" db:"-"`
}

func (a *Account) CanBorrowMore() bool {
	return len(a.BorrowedBooks) < a.Role.BorrowLimit()
}

func (a *Account) HasBorrowed(bookID string) bool {
	return a.borrowedIndex(bookID) >= 0
}

func (a *Account) borrowedIndex(bookID string) int {
	for i := range a.BorrowedBooks {
		if a.BorrowedBooks[i].BookID == bookID {
			return i
		}
	}
	return -1
}

// RecordBorrow appends an item. Limits and duplicates are the caller's concern.
func (a *Account) RecordBorrow(bookID string, now, due time.Time) {
	a.BorrowedBooks = append(a.BorrowedBooks, BorrowedItem{
		UserID:     a.ID,
		BookID:     bookID,
		BorrowedAt: now,
		DueDate:    due,
	})
}

// RecordReturn removes the first item for the book.
func (a *Account) RecordReturn(bookID string) error {
	idx := a.borrowedIndex(bookID)
	if idx < 0 {
		return errs.ErrNotBorrowed
	}
	a.BorrowedBooks = append(a.BorrowedBooks[:idx], a.BorrowedBooks[idx+1:]...)
	return nil
}
