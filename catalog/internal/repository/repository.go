package repository

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-catalog/catalog/internal/errs"
	"github.com/Astemirdum/library-catalog/catalog/internal/model"
	"github.com/Astemirdum/library-catalog/pkg/database"
)

type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetBook(ctx context.Context, id string) (model.Book, error)
	ListBooks(ctx context.Context, q model.ListBooksQuery) (model.ListBooks, error)
	SearchBooks(ctx context.Context, term string, limit int) ([]model.Book, error)
	CreateBook(ctx context.Context, book *model.Book) error

	GetAccount(ctx context.Context, id string) (model.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (model.Account, error)
	CreateAccount(ctx context.Context, acc *model.Account) error

	SaveLoanEvent(ctx context.Context, event model.LoanEvent) error
	LoanStats(ctx context.Context) ([]model.UserStats, error)
}

const (
	usersTableName         = `users`
	borrowedItemsTableName = `borrowed_items`
	booksTableName         = `books`
	activeLoansTableName   = `active_loans`
	loanHistoryTableName   = `loan_history`
	loanEventsTableName    = `loan_events`
)

var (
	bookColumns = []string{
		"id", "title", "author", "isbn", "genre", "description", "published_year",
		"total_copies", "available_copies", "added_by", "version", "created_at", "updated_at",
	}
	accountColumns = []string{
		"id", "name", "email", "password_hash", "role", "is_active", "version", "created_at", "updated_at",
	}
	activeLoanColumns   = []string{"book_id", "user_id", "user_name", "borrowed_at", "due_date"}
	loanRecordColumns   = []string{"id", "book_id", "user_id", "user_name", "borrowed_at", "due_date", "returned_at", "status", "seq"}
	borrowedItemColumns = []string{"user_id", "book_id", "borrowed_at", "due_date", "position"}
)

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExecerContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type repository struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
	// row locks are taken with FOR UPDATE; SQLite serialises writers on BEGIN IMMEDIATE instead
	forUpdate bool
	log       *zap.Logger
}

func NewRepository(db *sqlx.DB, log *zap.Logger) (*repository, error) {
	r := &repository{
		db:  db,
		log: log.Named("repo"),
	}
	switch db.DriverName() {
	case database.SQLite:
		r.qb = sq.StatementBuilder.PlaceholderFormat(sq.Question)
	case "pgx", database.Postgres:
		r.qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
		r.forUpdate = true
	default:
		return nil, errors.Errorf("unsupported driver %q", db.DriverName())
	}
	return r, nil
}

func (r *repository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(errors.Wrap(err, "BeginTxx"))
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.log.Warn("rollback", zap.Error(rbErr))
		}
	}()

	if err := fn(&tx{tx: sqlTx, repo: r}); err != nil {
		return classify(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(errors.Wrap(err, "Commit"))
	}
	committed = true
	return nil
}

func (r *repository) GetBook(ctx context.Context, id string) (model.Book, error) {
	book, err := r.loadBook(ctx, r.db, id, false)
	if err != nil {
		return model.Book{}, err
	}
	return *book, nil
}

func (r *repository) loadBook(ctx context.Context, q queryer, id string, lock bool) (*model.Book, error) {
	sb := r.qb.Select(bookColumns...).
		From(booksTableName).
		Where(sq.Eq{"id": id})
	if lock && r.forUpdate {
		sb = sb.Suffix("FOR UPDATE")
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, err
	}

	var book model.Book
	if err := q.GetContext(ctx, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrEntryNotFound
		}
		r.log.Error("loadBook", zap.String("q", query), zap.Error(err))
		return nil, errors.Wrap(err, "loadBook")
	}
	book.RecomputeAvailability()

	query, args, err = r.qb.Select(activeLoanColumns...).
		From(activeLoansTableName).
		Where(sq.Eq{"book_id": id}).
		OrderBy("borrowed_at", "user_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := q.SelectContext(ctx, &book.CurrentBorrowers, query, args...); err != nil {
		return nil, errors.Wrap(err, "load active loans")
	}

	query, args, err = r.qb.Select(loanRecordColumns...).
		From(loanHistoryTableName).
		Where(sq.Eq{"book_id": id}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := q.SelectContext(ctx, &book.BorrowHistory, query, args...); err != nil {
		return nil, errors.Wrap(err, "load loan history")
	}

	return &book, nil
}

// containsAny matches term as a case-insensitive substring of any column.
func containsAny(term string, cols ...string) sq.Or {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(term))
	like := "%" + escaped + "%"
	or := make(sq.Or, 0, len(cols))
	for _, col := range cols {
		or = append(or, sq.Expr("LOWER("+col+") LIKE ? ESCAPE '\\'", like))
	}
	return or
}

func (r *repository) ListBooks(ctx context.Context, lq model.ListBooksQuery) (model.ListBooks, error) {
	where := sq.And{}
	if lq.Search != "" {
		where = append(where, containsAny(lq.Search, "title", "author", "isbn"))
	}
	if lq.Genre != "" {
		where = append(where, containsAny(lq.Genre, "genre"))
	}
	switch lq.Availability {
	case model.AvailabilityAvailable:
		where = append(where, sq.Gt{"available_copies": 0})
	case model.AvailabilityUnavailable:
		where = append(where, sq.Eq{"available_copies": 0})
	}

	query, args, err := r.qb.Select("COUNT(*)").From(booksTableName).Where(where).ToSql()
	if err != nil {
		return model.ListBooks{}, err
	}
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return model.ListBooks{}, errors.Wrap(err, "count books")
	}

	query, args, err = r.qb.Select(bookColumns...).
		From(booksTableName).
		Where(where).
		OrderBy("created_at DESC", "id").
		Limit(uint64(lq.Limit)).
		Offset(uint64((lq.Page - 1) * lq.Limit)).
		ToSql()
	if err != nil {
		return model.ListBooks{}, err
	}
	r.log.Debug("ListBooks", zap.String("query", query), zap.Any("args", args))

	books := make([]model.Book, 0, lq.Limit)
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return model.ListBooks{}, errors.Wrap(err, "list books")
	}
	for i := range books {
		books[i].RecomputeAvailability()
	}

	return model.ListBooks{
		Paging: model.NewPaging(lq.Page, lq.Limit, total),
		Items:  books,
	}, nil
}

func (r *repository) SearchBooks(ctx context.Context, term string, limit int) ([]model.Book, error) {
	query, args, err := r.qb.Select(bookColumns...).
		From(booksTableName).
		Where(containsAny(term, "title", "author", "genre", "isbn")).
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	books := make([]model.Book, 0)
	if err := r.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, errors.Wrap(err, "search books")
	}
	for i := range books {
		books[i].RecomputeAvailability()
	}
	return books, nil
}

func (r *repository) CreateBook(ctx context.Context, b *model.Book) error {
	query, args, err := r.qb.Insert(booksTableName).
		Columns(bookColumns...).
		Values(b.ID, b.Title, b.Author, b.ISBN, b.Genre, b.Description, b.PublishedYear,
			b.TotalCopies, b.AvailableCopies, b.AddedBy, b.Version, b.CreatedAt, b.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrDuplicateCode
		}
		return errors.Wrap(err, "CreateBook")
	}
	b.RecomputeAvailability()
	return nil
}

func (r *repository) GetAccount(ctx context.Context, id string) (model.Account, error) {
	acc, err := r.loadAccount(ctx, r.db, sq.Eq{"id": id}, false)
	if err != nil {
		return model.Account{}, err
	}
	return *acc, nil
}

func (r *repository) GetAccountByEmail(ctx context.Context, email string) (model.Account, error) {
	acc, err := r.loadAccount(ctx, r.db, sq.Eq{"email": model.NormalizeEmail(email)}, false)
	if err != nil {
		return model.Account{}, err
	}
	return *acc, nil
}

func (r *repository) loadAccount(ctx context.Context, q queryer, where sq.Eq, lock bool) (*model.Account, error) {
	sb := r.qb.Select(accountColumns...).From(usersTableName).Where(where)
	if lock && r.forUpdate {
		sb = sb.Suffix("FOR UPDATE")
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, err
	}

	var acc model.Account
	if err := q.GetContext(ctx, &acc, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "loadAccount")
	}

	query, args, err = r.qb.Select(borrowedItemColumns...).
		From(borrowedItemsTableName).
		Where(sq.Eq{"user_id": acc.ID}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := q.SelectContext(ctx, &acc.BorrowedBooks, query, args...); err != nil {
		return nil, errors.Wrap(err, "load borrowed items")
	}
	return &acc, nil
}

func (r *repository) CreateAccount(ctx context.Context, a *model.Account) error {
	query, args, err := r.qb.Insert(usersTableName).
		Columns(accountColumns...).
		Values(a.ID, a.Name, a.Email, a.PasswordHash, string(a.Role), a.IsActive, a.Version, a.CreatedAt, a.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrDuplicateEmail
		}
		return errors.Wrap(err, "CreateAccount")
	}
	return nil
}
