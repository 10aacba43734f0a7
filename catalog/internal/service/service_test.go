package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Astemirdum/library-catalog/catalog/internal/errs"
	"github.com/Astemirdum/library-catalog/catalog/internal/model"
	"github.com/Astemirdum/library-catalog/catalog/internal/repository"
	"github.com/Astemirdum/library-catalog/catalog/migrations"
	"github.com/Astemirdum/library-catalog/pkg/auth"
	"github.com/Astemirdum/library-catalog/pkg/database"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.LoanEvent
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload.(model.LoanEvent))
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type recordingCache struct {
	mu          sync.Mutex
	books       map[string]model.Book
	invalidated []string
}

func (c *recordingCache) Get(_ context.Context, id string) (model.Book, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.books[id]
	return b, ok
}

func (c *recordingCache) Set(_ context.Context, book model.Book) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[book.ID] = book
}

func (c *recordingCache) Invalidate(_ context.Context, ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.books, id)
		c.invalidated = append(c.invalidated, id)
	}
}

type fixture struct {
	svc       *Service
	repo      repository.Repository
	publisher *recordingPublisher
	cache     *recordingCache
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &database.DB{
		Driver:       database.SQLite,
		Path:         filepath.Join(t.TempDir(), "catalog.db"),
		MaxOpenConns: 4,
	}
	db, err := database.NewDB(context.Background(), cfg, migrations.MigrationFiles)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := repository.NewRepository(db, zap.NewNop())
	require.NoError(t, err)

	f := &fixture{
		repo:      repo,
		publisher: &recordingPublisher{},
		cache:     &recordingCache{books: map[string]model.Book{}},
		clock:     time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	tokens := auth.NewTokenManager(auth.Config{Secret: "test", Issuer: "i", Audience: "a", TTL: time.Hour})
	f.svc = NewService(repo, tokens, Config{MaxAttempts: 3, TxTimeout: 5 * time.Second, BcryptCost: bcrypt.MinCost},
		zap.NewNop(), WithCache(f.cache), WithPublisher(f.publisher), WithClock(func() time.Time { return f.clock }))
	return f
}

func (f *fixture) member(t *testing.T, name string) model.Account {
	return f.account(t, name, model.RoleMember)
}

func (f *fixture) account(t *testing.T, name string, role model.Role) model.Account {
	t.Helper()
	resp, err := f.svc.Register(context.Background(), model.RegisterRequest{
		Name: name, Email: name + "@example.com", Password: "secret1",
	}, role)
	require.NoError(t, err)
	return resp.Account
}

func (f *fixture) book(t *testing.T, isbn string, copies int) model.Book {
	t.Helper()
	b, err := f.svc.AddBook(context.Background(), "admin", model.CreateBookRequest{
		Title: "Title " + isbn, Author: "Author", ISBN: isbn, TotalCopies: copies,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) assertConsistent(t *testing.T, bookID string) model.Book {
	t.Helper()
	b, err := f.repo.GetBook(context.Background(), bookID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, b.AvailableCopies, 0)
	assert.LessOrEqual(t, b.AvailableCopies, b.TotalCopies)
	assert.Equal(t, b.AvailableCopies > 0, b.IsAvailable)
	assert.Len(t, b.CurrentBorrowers, b.TotalCopies-b.AvailableCopies)
	for _, loan := range b.CurrentBorrowers {
		acc, err := f.repo.GetAccount(context.Background(), loan.UserID)
		require.NoError(t, err)
		var found bool
		for _, item := range acc.BorrowedBooks {
			if item.BookID == bookID {
				found = true
				assert.True(t, item.DueDate.Equal(loan.DueDate))
			}
		}
		assert.True(t, found, "account %s is missing the borrowed item", loan.UserID)
	}
	return b
}

func TestBorrowReturnScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "9780306406157", 1)
	a := f.member(t, "ann")
	b := f.member(t, "bob")

	resp, err := f.svc.Borrow(ctx, book.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, book.Title, resp.Title)
	assert.True(t, f.clock.AddDate(0, 0, 14).Equal(resp.DueDate))
	got := f.assertConsistent(t, book.ID)
	assert.Equal(t, 0, got.AvailableCopies)
	assert.False(t, got.IsAvailable)

	_, err = f.svc.Borrow(ctx, book.ID, b.ID)
	assert.ErrorIs(t, err, errs.ErrNotAvailable)

	ret, err := f.svc.Return(ctx, book.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ret.AvailableCopies)
	got = f.assertConsistent(t, book.ID)
	assert.True(t, got.IsAvailable)

	_, err = f.svc.Borrow(ctx, book.ID, b.ID)
	require.NoError(t, err)
	got = f.assertConsistent(t, book.ID)
	require.Len(t, got.BorrowHistory, 2)
	assert.Equal(t, model.LoanReturned, got.BorrowHistory[0].Status)
	assert.Equal(t, a.ID, got.BorrowHistory[0].UserID)
	assert.Equal(t, model.LoanBorrowed, got.BorrowHistory[1].Status)

	require.Len(t, f.publisher.events, 3)
	assert.Equal(t, model.EventBorrowed, f.publisher.events[0].Type)
	assert.Equal(t, model.EventReturned, f.publisher.events[1].Type)
	assert.Equal(t, []string{book.ID, book.ID, book.ID}, f.cache.invalidated)
}

func TestBorrowReturnRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "9780306406157", 3)
	a := f.member(t, "ann")

	before, err := f.repo.GetBook(ctx, book.ID)
	require.NoError(t, err)

	_, err = f.svc.Borrow(ctx, book.ID, a.ID)
	require.NoError(t, err)
	_, err = f.svc.Return(ctx, book.ID, a.ID)
	require.NoError(t, err)

	after := f.assertConsistent(t, book.ID)
	assert.Equal(t, before.AvailableCopies, after.AvailableCopies)
	assert.Equal(t, before.IsAvailable, after.IsAvailable)
	assert.Empty(t, after.CurrentBorrowers)
	acc, err := f.repo.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, acc.BorrowedBooks)
}

func TestBorrowTwiceAndReturnTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "9780306406157", 5)
	a := f.member(t, "ann")

	_, err := f.svc.Borrow(ctx, book.ID, a.ID)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = f.svc.Borrow(ctx, book.ID, a.ID)
		assert.ErrorIs(t, err, errs.ErrAlreadyBorrowed)
	}
	got := f.assertConsistent(t, book.ID)
	assert.Equal(t, 4, got.AvailableCopies)

	_, err = f.svc.Return(ctx, book.ID, a.ID)
	require.NoError(t, err)
	_, err = f.svc.Return(ctx, book.ID, a.ID)
	assert.ErrorIs(t, err, errs.ErrNotBorrowed)
}

func TestBorrowNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "9780306406157", 1)
	a := f.member(t, "ann")

	_, err := f.svc.Borrow(ctx, "missing", a.ID)
	assert.ErrorIs(t, err, errs.ErrEntryNotFound)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	_, err = f.svc.Borrow(ctx, book.ID, "missing")
	assert.ErrorIs(t, err, errs.ErrAccountNotFound)

	_, err = f.svc.Return(ctx, "missing", a.ID)
	assert.ErrorIs(t, err, errs.ErrEntryNotFound)
	_, err = f.svc.Return(ctx, book.ID, "missing")
	assert.ErrorIs(t, err, errs.ErrAccountNotFound)

	f.assertConsistent(t, book.ID)
}

func TestBorrowLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.member(t, "mem")
	admin := f.account(t, "adm", model.RoleAdmin)

	books := make([]model.Book, 6)
	for i := range books {
		books[i] = f.book(t, fmt.Sprintf("ISBN-%d", i), 2)
	}
	for i := 0; i < 5; i++ {
		_, err := f.svc.Borrow(ctx, books[i].ID, member.ID)
		require.NoError(t, err)
		_, err = f.svc.Borrow(ctx, books[i].ID, admin.ID)
		require.NoError(t, err)
	}

	_, err := f.svc.Borrow(ctx, books[5].ID, member.ID)
	require.ErrorIs(t, err, errs.ErrBorrowLimitExceeded)
	assert.Contains(t, err.Error(), "5")

	_, err = f.svc.Borrow(ctx, books[5].ID, admin.ID)
	require.NoError(t, err)

	acc, err := f.repo.GetAccount(ctx, member.ID)
	require.NoError(t, err)
	assert.Len(t, acc.BorrowedBooks, 5)
	f.assertConsistent(t, books[5].ID)
}

func TestDeleteBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "9780306406157", 2)
	a := f.member(t, "ann")

	_, err := f.svc.Borrow(ctx, book.ID, a.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.DeleteBook(ctx, book.ID), errs.ErrHasActiveLoans)

	_, err = f.svc.Return(ctx, book.ID, a.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteBook(ctx, book.ID))

	_, err = f.svc.GetBook(ctx, book.ID)
	assert.ErrorIs(t, err, errs.ErrEntryNotFound)
	assert.ErrorIs(t, f.svc.DeleteBook(ctx, book.ID), errs.ErrEntryNotFound)
}

func TestConcurrentBorrowOfLastCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "9780306406157", 1)

	const borrowers = 6
	accounts := make([]model.Account, borrowers)
	for i := range accounts {
		accounts[i] = f.member(t, fmt.Sprintf("user%d", i))
	}

	var (
		wg        sync.WaitGroup
		successes int32
		start     = make(chan struct{})
	)
	for i := range accounts {
		wg.Add(1)
		go func(acc model.Account) {
			defer wg.Done()
			<-start
			_, err := f.svc.Borrow(ctx, book.ID, acc.ID)
			if err == nil {
				atomic.AddInt32(&successes, 1)
				return
			}
			assert.True(t, errors.Is(err, errs.ErrNotAvailable) || errs.KindOf(err) == errs.KindConflict,
				"unexpected failure %v", err)
		}(accounts[i])
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	got := f.assertConsistent(t, book.ID)
	assert.Equal(t, 0, got.AvailableCopies)
	assert.Len(t, got.CurrentBorrowers, 1)
}

func TestConcurrentBorrowBySameUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "9780306406157", 3)
	a := f.member(t, "ann")

	var (
		wg        sync.WaitGroup
		successes int32
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Borrow(ctx, book.ID, a.ID); err == nil {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	got := f.assertConsistent(t, book.ID)
	assert.Equal(t, 2, got.AvailableCopies)
}

type conflictingRepo struct {
	repository.Repository
	attempts int32
}

func (r *conflictingRepo) WithinTx(context.Context, func(tx repository.Tx) error) error {
	atomic.AddInt32(&r.attempts, 1)
	return repository.ErrVersionConflict
}

func TestBorrowConflictAfterRetries(t *testing.T) {
	repo := &conflictingRepo{}
	svc := NewService(repo, nil, Config{MaxAttempts: 3, TxTimeout: time.Second}, zap.NewNop())

	_, err := svc.Borrow(context.Background(), "b1", "u1")
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&repo.attempts))
}

type slowRepo struct {
	repository.Repository
	attempts int32
}

func (r *slowRepo) WithinTx(ctx context.Context, _ func(tx repository.Tx) error) error {
	atomic.AddInt32(&r.attempts, 1)
	<-ctx.Done()
	return ctx.Err()
}

func TestBorrowTimesOut(t *testing.T) {
	repo := &slowRepo{}
	svc := NewService(repo, nil, Config{MaxAttempts: 3, TxTimeout: 20 * time.Millisecond}, zap.NewNop())

	_, err := svc.Borrow(context.Background(), "b1", "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.attempts))
}

func TestUpdateBookCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "9780306406157", 3)
	for _, name := range []string{"ann", "bob"} {
		acc := f.member(t, name)
		_, err := f.svc.Borrow(ctx, book.ID, acc.ID)
		require.NoError(t, err)
	}

	one := 1
	_, err := f.svc.UpdateBook(ctx, book.ID, model.UpdateBookRequest{TotalCopies: &one})
	assert.ErrorIs(t, err, errs.ErrValidation)

	five := 5
	title := "  New title "
	updated, err := f.svc.UpdateBook(ctx, book.ID, model.UpdateBookRequest{TotalCopies: &five, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "New title", updated.Title)
	assert.Equal(t, 3, updated.AvailableCopies)
	f.assertConsistent(t, book.ID)

	other := f.book(t, "9780132350884", 1)
	isbn := "978-0-306-40615-7"
	_, err = f.svc.UpdateBook(ctx, other.ID, model.UpdateBookRequest{ISBN: &isbn})
	assert.ErrorIs(t, err, errs.ErrDuplicateCode)
}

func TestAddBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.svc.AddBook(ctx, "admin-1", model.CreateBookRequest{Title: "Dune", Author: "Frank Herbert", ISBN: "978-0-306-40615-7"})
	require.NoError(t, err)
	assert.Equal(t, 1, b.TotalCopies)
	assert.Equal(t, 1, b.AvailableCopies)
	assert.True(t, b.IsAvailable)
	assert.Equal(t, model.DefaultGenre, b.Genre)
	assert.Equal(t, "admin-1", b.AddedBy)

	_, err = f.svc.AddBook(ctx, "admin-1", model.CreateBookRequest{Title: "Dune 2", Author: "Frank Herbert", ISBN: "9780306406157"})
	assert.ErrorIs(t, err, errs.ErrDuplicateCode)

	_, err = f.svc.AddBook(ctx, "admin-1", model.CreateBookRequest{Title: " ", Author: "Frank Herbert", ISBN: "0306406152"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestGetBookUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "9780306406157", 1)

	_, err := f.svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	_, cached := f.cache.books[book.ID]
	assert.True(t, cached)

	a := f.member(t, "ann")
	_, err = f.svc.Borrow(ctx, book.ID, a.ID)
	require.NoError(t, err)
	_, cached = f.cache.books[book.ID]
	assert.False(t, cached)

	got, err := f.svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCopies)
	assert.Len(t, got.CurrentBorrowers, 1)
}

func TestListAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, "A1", 1)
	taken := f.book(t, "A2", 1)
	a := f.member(t, "ann")
	_, err := f.svc.Borrow(ctx, taken.ID, a.ID)
	require.NoError(t, err)

	all, err := f.svc.ListBooks(ctx, model.ListBooksQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.TotalElements)
	assert.Equal(t, 1, all.Page)
	assert.Equal(t, 10, all.PageSize)

	available, err := f.svc.ListAvailableBooks(ctx, model.ListBooksQuery{})
	require.NoError(t, err)
	require.Len(t, available.Items, 1)
	assert.NotEqual(t, taken.ID, available.Items[0].ID)

	found, err := f.svc.SearchBooks(ctx, "title a2")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, taken.ID, found[0].ID)

	_, err = f.svc.SearchBooks(ctx, "   ")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, model.RegisterRequest{Name: " Ann ", Email: " Ann@Example.com ", Password: "secret1"}, model.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", reg.Account.Email)
	assert.Equal(t, "Ann", reg.Account.Name)
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "Bearer", reg.Type)

	_, err = f.svc.Register(ctx, model.RegisterRequest{Name: "Ann", Email: "ann@example.com", Password: "secret1"}, model.RoleMember)
	assert.ErrorIs(t, err, errs.ErrDuplicateEmail)

	login, err := f.svc.Login(ctx, model.LoginRequest{Email: "ANN@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, login.Account.ID)

	_, err = f.svc.Login(ctx, model.LoginRequest{Email: "ann@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, model.LoginRequest{Email: "nobody@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)

	acc, err := f.svc.UpdateProfile(ctx, reg.Account.ID, model.UpdateProfileRequest{Name: "Anna"})
	require.NoError(t, err)
	assert.Equal(t, "Anna", acc.Name)

	err = f.svc.ChangePassword(ctx, reg.Account.ID, model.ChangePasswordRequest{CurrentPassword: "nope", NewPassword: "secret2"})
	assert.ErrorIs(t, err, errs.ErrValidation)
	require.NoError(t, f.svc.ChangePassword(ctx, reg.Account.ID, model.ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "secret2"}))

	_, err = f.svc.Login(ctx, model.LoginRequest{Email: "ann@example.com", Password: "secret2"})
	require.NoError(t, err)

	profile, err := f.svc.Profile(ctx, reg.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anna", profile.Name)
}

func TestLoanStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "9780306406157", 1)
	a := f.member(t, "ann")
	_, err := f.svc.Borrow(ctx, book.ID, a.ID)
	require.NoError(t, err)

	for _, e := range f.publisher.events {
		require.NoError(t, f.svc.RecordLoanEvent(ctx, e))
		require.NoError(t, f.svc.RecordLoanEvent(ctx, e))
	}
	stats, err := f.svc.LoanStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, a.ID, stats[0].UserID)
	assert.Equal(t, 1, stats[0].Borrowed)
}

var errDiskGone = errors.New("disk gone")

// failingAccountRepo runs real transactions whose account write fails after
// the book write went through.
type failingAccountRepo struct {
	repository.Repository
	bookSaves int32
}

func (r *failingAccountRepo) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return r.Repository.WithinTx(ctx, func(tx repository.Tx) error {
		return fn(&failingAccountTx{Tx: tx, repo: r})
	})
}

type failingAccountTx struct {
	repository.Tx
	repo *failingAccountRepo
}

func (t *failingAccountTx) SaveBook(ctx context.Context, book *model.Book) error {
	if err := t.Tx.SaveBook(ctx, book); err != nil {
		return err
	}
	atomic.AddInt32(&t.repo.bookSaves, 1)
	return nil
}

func (t *failingAccountTx) SaveAccount(context.Context, *model.Account) error {
	return errDiskGone
}

func (f *fixture) failingService() (*Service, *failingAccountRepo) {
	repo := &failingAccountRepo{Repository: f.repo}
	svc := NewService(repo, nil, Config{MaxAttempts: 3, TxTimeout: 5 * time.Second}, zap.NewNop(),
		WithCache(f.cache), WithPublisher(f.publisher), WithClock(func() time.Time { return f.clock }))
	return svc, repo
}

func TestBorrowRollsBackBookWhenAccountWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "9780306406157", 1)
	a := f.member(t, "ann")
	svc, repo := f.failingService()

	_, err := svc.Borrow(ctx, book.ID, a.ID)
	require.ErrorIs(t, err, errDiskGone)
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.bookSaves))

	got := f.assertConsistent(t, book.ID)
	assert.Equal(t, 1, got.AvailableCopies)
	assert.True(t, got.IsAvailable)
	assert.Empty(t, got.CurrentBorrowers)
	assert.Empty(t, got.BorrowHistory)
	acc, err := f.repo.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, acc.BorrowedBooks)
	assert.Empty(t, f.publisher.events)
	assert.Empty(t, f.cache.invalidated)

	_, err = f.svc.Borrow(ctx, book.ID, a.ID)
	require.NoError(t, err)
	got = f.assertConsistent(t, book.ID)
	assert.Equal(t, 0, got.AvailableCopies)
	require.Len(t, got.BorrowHistory, 1)
	assert.Equal(t, model.LoanBorrowed, got.BorrowHistory[0].Status)
}

func TestReturnRollsBackBookWhenAccountWriteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "9780306406157", 1)
	a := f.member(t, "ann")
	_, err := f.svc.Borrow(ctx, book.ID, a.ID)
	require.NoError(t, err)
	svc, repo := f.failingService()

	_, err = svc.Return(ctx, book.ID, a.ID)
	require.ErrorIs(t, err, errDiskGone)
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.bookSaves))

	got := f.assertConsistent(t, book.ID)
	assert.Equal(t, 0, got.AvailableCopies)
	assert.False(t, got.IsAvailable)
	require.Len(t, got.CurrentBorrowers, 1)
	assert.Equal(t, a.ID, got.CurrentBorrowers[0].UserID)
	require.Len(t, got.BorrowHistory, 1)
	assert.Equal(t, model.LoanBorrowed, got.BorrowHistory[0].Status)
	assert.Nil(t, got.BorrowHistory[0].ReturnedAt)
	acc, err := f.repo.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, acc.BorrowedBooks, 1)
	assert.Len(t, f.publisher.events, 1)

	ret, err := f.svc.Return(ctx, book.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ret.AvailableCopies)
	got = f.assertConsistent(t, book.ID)
	assert.Empty(t, got.CurrentBorrowers)
	require.Len(t, got.BorrowHistory, 1)
	assert.Equal(t, model.LoanReturned, got.BorrowHistory[0].Status)
}

func TestLendingIgnoresStaleCachedBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, "9780306406157", 1)
	a := f.member(t, "ann")
	b := f.member(t, "bob")

	stale, err := f.svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	_, err = f.svc.Borrow(ctx, book.ID, a.ID)
	require.NoError(t, err)
	// a reader that loaded before the borrow may repopulate the cache afterwards
	f.cache.Set(ctx, stale)

	cached, err := f.svc.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, cached.IsAvailable)

	_, err = f.svc.Borrow(ctx, book.ID, b.ID)
	assert.ErrorIs(t, err, errs.ErrNotAvailable)
	_, err = f.svc.Return(ctx, book.ID, b.ID)
	assert.ErrorIs(t, err, errs.ErrNotBorrowed)
	got := f.assertConsistent(t, book.ID)
	assert.Equal(t, 0, got.AvailableCopies)
}
