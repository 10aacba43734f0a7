package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Astemirdum/library-catalog/catalog/internal/errs"
)

var now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newBook(total int) *Book {
	b := &Book{ID: "book-1", Title: "Dune", Author: "Frank Herbert", TotalCopies: total, AvailableCopies: total}
	b.RecomputeAvailability()
	return b
}

func assertCopyInvariants(t *testing.T, b *Book) {
	t.Helper()
	assert.GreaterOrEqual(t, b.AvailableCopies, 0)
	assert.LessOrEqual(t, b.AvailableCopies, b.TotalCopies)
	assert.Equal(t, b.AvailableCopies > 0, b.IsAvailable)
	assert.Len(t, b.CurrentBorrowers, b.TotalCopies-b.AvailableCopies)
}

func TestBook_ReserveCopy(t *testing.T) {
	b := newBook(2)

	due, err := b.ReserveCopy("u1", "Ann", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, 14), due)
	assert.Equal(t, 1, b.AvailableCopies)
	assert.True(t, b.IsAvailable)
	require.Len(t, b.BorrowHistory, 1)
	assert.Equal(t, LoanBorrowed, b.BorrowHistory[0].Status)
	assert.Equal(t, due, b.CurrentBorrowers[0].DueDate)
	assertCopyInvariants(t, b)

	_, err = b.ReserveCopy("u1", "Ann", now)
	assert.ErrorIs(t, err, errs.ErrAlreadyBorrowed)

	_, err = b.ReserveCopy("u2", "Bob", now)
	require.NoError(t, err)
	assert.Equal(t, 0, b.AvailableCopies)
	assert.False(t, b.IsAvailable)
	assertCopyInvariants(t, b)

	_, err = b.ReserveCopy("u3", "Cid", now)
	assert.ErrorIs(t, err, errs.ErrNoCopiesAvailable)
	assertCopyInvariants(t, b)
	assert.Len(t, b.ChangedHistory(), 2)
}

func TestBook_ReleaseCopy(t *testing.T) {
	b := newBook(1)
	_, err := b.ReserveCopy("u1", "Ann", now)
	require.NoError(t, err)

	assert.ErrorIs(t, b.ReleaseCopy("u2", now), errs.ErrNotBorrowedByUser)

	later := now.Add(48 * time.Hour)
	require.NoError(t, b.ReleaseCopy("u1", later))
	assert.Equal(t, 1, b.AvailableCopies)
	assert.True(t, b.IsAvailable)
	assert.Empty(t, b.CurrentBorrowers)
	require.Len(t, b.BorrowHistory, 1)
	assert.Equal(t, LoanReturned, b.BorrowHistory[0].Status)
	require.NotNil(t, b.BorrowHistory[0].ReturnedAt)
	assert.Equal(t, later, *b.BorrowHistory[0].ReturnedAt)
	assertCopyInvariants(t, b)

	assert.ErrorIs(t, b.ReleaseCopy("u1", later), errs.ErrNotBorrowedByUser)
}

func TestBook_ReleaseCopyCompletesLatestOpenRecord(t *testing.T) {
	b := newBook(1)
	// a stale open record left by an earlier loan
	b.BorrowHistory = []LoanRecord{{ID: "old", UserID: "u1", Status: LoanBorrowed, Seq: 1}}

	_, err := b.ReserveCopy("u1", "Ann", now)
	require.NoError(t, err)
	require.NoError(t, b.ReleaseCopy("u1", now))

	assert.Equal(t, LoanBorrowed, b.BorrowHistory[0].Status)
	assert.Equal(t, LoanReturned, b.BorrowHistory[1].Status)
	assert.Equal(t, 2, b.BorrowHistory[1].Seq)
}

func TestBook_SetTotalCopies(t *testing.T) {
	b := newBook(3)
	_, err := b.ReserveCopy("u1", "Ann", now)
	require.NoError(t, err)
	_, err = b.ReserveCopy("u2", "Bob", now)
	require.NoError(t, err)

	assert.ErrorIs(t, b.SetTotalCopies(1), errs.ErrValidation)
	assert.ErrorIs(t, b.SetTotalCopies(0), errs.ErrValidation)

	require.NoError(t, b.SetTotalCopies(2))
	assert.Equal(t, 0, b.AvailableCopies)
	assert.False(t, b.IsAvailable)
	assertCopyInvariants(t, b)

	require.NoError(t, b.SetTotalCopies(5))
	assert.Equal(t, 3, b.AvailableCopies)
	assertCopyInvariants(t, b)
}

func TestAccount_BorrowLimits(t *testing.T) {
	tests := []struct {
		role  Role
		limit int
	}{
		{RoleMember, 5},
		{RoleAdmin, 10},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			a := &Account{ID: "u1", Role: tt.role}
			for i := 0; i < tt.limit; i++ {
				require.True(t, a.CanBorrowMore())
				a.RecordBorrow(string(rune('a'+i)), now, now.AddDate(0, 0, 14))
			}
			assert.False(t, a.CanBorrowMore())
			assert.Equal(t, tt.limit, tt.role.BorrowLimit())
		})
	}
}

func TestAccount_RecordReturn(t *testing.T) {
	a := &Account{ID: "u1", Role: RoleMember}
	a.RecordBorrow("b1", now, now)
	a.RecordBorrow("b2", now, now)

	assert.True(t, a.HasBorrowed("b1"))
	require.NoError(t, a.RecordReturn("b1"))
	assert.False(t, a.HasBorrowed("b1"))
	assert.True(t, a.HasBorrowed("b2"))
	assert.ErrorIs(t, a.RecordReturn("b1"), errs.ErrNotBorrowed)
}

func TestNewPaging(t *testing.T) {
	p := NewPaging(2, 10, 25)
	assert.Equal(t, 3, p.Pages)
	assert.True(t, p.HasNext)
	assert.True(t, p.HasPrev)

	p = NewPaging(3, 10, 25)
	assert.False(t, p.HasNext)

	p = NewPaging(1, 10, 0)
	assert.Equal(t, 0, p.Pages)
	assert.False(t, p.HasNext)
	assert.False(t, p.HasPrev)
}

func TestCreateBookRequest_Normalize(t *testing.T) {
	r := CreateBookRequest{Title: "  Dune ", Author: " Frank Herbert", ISBN: "978-0-306-40615-7"}
	r.Normalize()
	assert.Equal(t, "Dune", r.Title)
	assert.Equal(t, "9780306406157", r.ISBN)
	assert.Equal(t, DefaultGenre, r.Genre)
	assert.Equal(t, 1, r.TotalCopies)
	assert.Equal(t, "ann@example.com", NormalizeEmail("  Ann@Example.COM "))
}
