package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/Astemirdum/library-catalog/catalog/internal/errs"
)

// LoanPeriodDays is the number of calendar days a copy may be kept.
const LoanPeriodDays = 14

const DefaultGenre = "General"

type LoanStatus string

const (
	LoanBorrowed LoanStatus = "borrowed"
	LoanReturned LoanStatus = "returned"
	// LoanOverdue is a label only, nothing moves records into it.
	LoanOverdue LoanStatus = "overdue"
)

type ActiveLoan struct {
	BookID     string    `json:"-" db:"book_id"`
	UserID     string    `json:"userId" db:"user_id"`
	UserName   string    `json:"userName" db:"user_name"`
	BorrowedAt time.Time `json:"borrowedAt" db:"borrowed_at"`
	DueDate    time.Time `json:"dueDate" db:"due_date"`
}

type LoanRecord struct {
	ID         string     `json:"id" db:"id"`
	BookID     string     `json:"-" db:"book_id"`
	UserID     string     `json:"userId" db:"user_id"`
	UserName   string     `json:"userName" db:"user_name"`
	BorrowedAt time.Time  `json:"borrowedAt" db:"borrowed_at"`
	DueDate    time.Time  `json:"dueDate" db:"due_date"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty" db:"returned_at"`
	Status     LoanStatus `json:"status" db:"status"`
	Seq        int        `json:"-" db:"seq"`
}

type Book struct {
	ID              string    `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Author          string    `json:"author" db:"author"`
	ISBN            string    `json:"isbn" db:"isbn"`
	Genre           string    `json:"genre" db:"genre"`
	Description     string    `json:"description" db:"description"`
	PublishedYear   *int      `json:"publishedYear,omitempty" db:"published_year"`
	TotalCopies     int       `json:"totalCopies" db:"total_copies"`
	AvailableCopies int       `json:"availableCopies" db:"available_copies"`
	IsAvailable     bool      `json:"isAvailable" db:"-"`
	AddedBy         string    `json:"addedBy" db:"added_by"`
	Version         int64     `json:"-" db:"version"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`

	CurrentBorrowers []ActiveLoan `json:"currentBorrowers,omitempty" db:"-"`
	BorrowHistory    []LoanRecord `json:"borrowHistory,omitempty" db:"-"`

	// ids of history records created or completed since the book was loaded
	changed map[string]struct{}
}

// RecomputeAvailability derives IsAvailable from the copy counter.
func (b *Book) RecomputeAvailability() {
	b.IsAvailable = b.AvailableCopies > 0
}

func (b *Book) HasActiveLoans() bool {
	return len(b.CurrentBorrowers) > 0
}

func (b *Book) activeLoanIndex(userID string) int {
	for i := range b.CurrentBorrowers {
		if b.CurrentBorrowers[i].UserID == userID {
			return i
		}
	}
	return -1
}

func (b *Book) nextSeq() int {
	seq := 0
	for i := range b.BorrowHistory {
		if b.BorrowHistory[i].Seq > seq {
			seq = b.BorrowHistory[i].Seq
		}
	}
	return seq + 1
}

func (b *Book) markChanged(id string) {
	if b.changed == nil {
		b.changed = make(map[string]struct{})
	}
	b.changed[id] = struct{}{}
}

// ReserveCopy hands one copy to the user and returns its due date.
func (b *Book) ReserveCopy(userID, userName string, now time.Time) (time.Time, error) {
	if b.AvailableCopies <= 0 {
		return time.Time{}, errs.ErrNoCopiesAvailable
	}
	if b.activeLoanIndex(userID) >= 0 {
		return time.Time{}, errs.ErrAlreadyBorrowed
	}

	due := now.AddDate(0, 0, LoanPeriodDays)
	b.CurrentBorrowers = append(b.CurrentBorrowers, ActiveLoan{
		BookID:     b.ID,
		UserID:     userID,
		UserName:   userName,
		BorrowedAt: now,
		DueDate:    due,
	})

	rec := LoanRecord{
		ID:         uuid.NewString(),
		BookID:     b.ID,
		UserID:     userID,
		UserName:   userName,
		BorrowedAt: now,
		DueDate:    due,
		Status:     LoanBorrowed,
		Seq:        b.nextSeq(),
	}
	b.BorrowHistory = append(b.BorrowHistory, rec)
	b.markChanged(rec.ID)

	b.AvailableCopies--
	b.RecomputeAvailability()
	return due, nil
}

// ReleaseCopy takes the user's copy back and completes the latest open
// history record for that user.
func (b *Book) ReleaseCopy(userID string, now time.Time) error {
	idx := b.activeLoanIndex(userID)
	if idx < 0 {
		return errs.ErrNotBorrowedByUser
	}
	b.CurrentBorrowers = append(b.CurrentBorrowers[:idx], b.CurrentBorrowers[idx+1:]...)

	open := -1
	for i := range b.BorrowHistory {
		rec := b.BorrowHistory[i]
		if rec.UserID != userID || rec.Status != LoanBorrowed {
			continue
		}
		if open < 0 || rec.Seq > b.BorrowHistory[open].Seq {
			open = i
		}
	}
	if open >= 0 {
		returnedAt := now
		b.BorrowHistory[open].Status = LoanReturned
		b.BorrowHistory[open].ReturnedAt = &returnedAt
		b.markChanged(b.BorrowHistory[open].ID)
	}

	b.AvailableCopies++
	b.RecomputeAvailability()
	return nil
}

// SetTotalCopies changes the stock while keeping every copy on loan accounted for.
func (b *Book) SetTotalCopies(total int) error {
	onLoan := len(b.CurrentBorrowers)
	if total < 1 {
		return errs.Validation("at least 1 copy is required")
	}
	if total < onLoan {
		return errs.Validation("total copies cannot be lower than the number of copies on loan")
	}
	b.TotalCopies = total
	b.AvailableCopies = total - onLoan
	b.RecomputeAvailability()
	return nil
}

// ChangedHistory returns the history records that need to be persisted.
func (b *Book) ChangedHistory() []LoanRecord {
	out := make([]LoanRecord, 0, len(b.changed))
	for i := range b.BorrowHistory {
		if _, ok := b.changed[b.BorrowHistory[i].ID]; ok {
			out = append(out, b.BorrowHistory[i])
		}
	}
	return out
}

func (b *Book) ClearChanges() {
	b.changed = nil
}

type Paging struct {
	Page          int  `json:"page"`
	PageSize      int  `json:"pageSize"`
	TotalElements int  `json:"totalElements"`
	Pages         int  `json:"pages"`
	HasNext       bool `json:"hasNext"`
	HasPrev       bool `json:"hasPrev"`
}

func NewPaging(page, size, total int) Paging {
	pages := 0
	if size > 0 {
		pages = (total + size - 1) / size
	}
	return Paging{
		Page:          page,
		PageSize:      size,
		TotalElements: total,
		Pages:         pages,
		HasNext:       page*size < total,
		HasPrev:       page > 1,
	}
}

type ListBooks struct {
	Paging `json:",inline"`
	Items  []Book `json:"items"`
}
