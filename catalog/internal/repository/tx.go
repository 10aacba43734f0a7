package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/Astemirdum/library-catalog/catalog/internal/errs"
	"github.com/Astemirdum/library-catalog/catalog/internal/model"
)

// Tx is a unit of work. Callers must lock the book before the account.
type Tx interface {
	LockBook(ctx context.Context, id string) (*model.Book, error)
	LockAccount(ctx context.Context, id string) (*model.Account, error)
	SaveBook(ctx context.Context, book *model.Book) error
	SaveAccount(ctx context.Context, acc *model.Account) error
	DeleteBook(ctx context.Context, id string) error
}

type tx struct {
	tx   *sqlx.Tx
	repo *repository
}

func (t *tx) LockBook(ctx context.Context, id string) (*model.Book, error) {
	b, err := t.repo.loadBook(ctx, t.tx, id, true)
	return b, errors.WithMessage(err, "LockBook")
}

func (t *tx) LockAccount(ctx context.Context, id string) (*model.Account, error) {
	a, err := t.repo.loadAccount(ctx, t.tx, sq.Eq{"id": id}, true)
	return a, errors.WithMessage(err, "LockAccount")
}

// SaveBook writes the row with a version check, then syncs active loans and
// changed history records.
func (t *tx) SaveBook(ctx context.Context, b *model.Book) error {
	qb := t.repo.qb
	query, args, err := qb.Update(booksTableName).
		Set("title", b.Title).
		Set("author", b.Author).
		Set("isbn", b.ISBN).
		Set("genre", b.Genre).
		Set("description", b.Description).
		Set("published_year", b.PublishedYear).
		Set("total_copies", b.TotalCopies).
		Set("available_copies", b.AvailableCopies).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", b.UpdatedAt).
		Where(sq.Eq{"id": b.ID, "version": b.Version}).
		ToSql()
	if err != nil {
		return err
	}
	if err := t.execVersioned(ctx, query, args); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrDuplicateCode
		}
		return errors.Wrap(err, "SaveBook")
	}

	query, args, err = qb.Delete(activeLoansTableName).Where(sq.Eq{"book_id": b.ID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "clear active loans")
	}
	if len(b.CurrentBorrowers) > 0 {
		ins := qb.Insert(activeLoansTableName).Columns(activeLoanColumns...)
		for _, l := range b.CurrentBorrowers {
			ins = ins.Values(b.ID, l.UserID, l.UserName, l.BorrowedAt, l.DueDate)
		}
		query, args, err = ins.ToSql()
		if err != nil {
			return err
		}
		if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrap(err, "insert active loans")
		}
	}

	for _, rec := range b.ChangedHistory() {
		query, args, err = qb.Insert(loanHistoryTableName).
			Columns(loanRecordColumns...).
			Values(rec.ID, b.ID, rec.UserID, rec.UserName, rec.BorrowedAt, rec.DueDate, rec.ReturnedAt, string(rec.Status), rec.Seq).
			Suffix("ON CONFLICT (id) DO UPDATE SET status = excluded.status, returned_at = excluded.returned_at").
			ToSql()
		if err != nil {
			return err
		}
		if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrap(err, "upsert loan history")
		}
	}

	b.ClearChanges()
	b.Version++
	return nil
}

func (t *tx) SaveAccount(ctx context.Context, a *model.Account) error {
	qb := t.repo.qb
	query, args, err := qb.Update(usersTableName).
		Set("name", a.Name).
		Set("email", a.Email).
		Set("password_hash", a.PasswordHash).
		Set("role", string(a.Role)).
		Set("is_active", a.IsActive).
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", a.UpdatedAt).
		Where(sq.Eq{"id": a.ID, "version": a.Version}).
		ToSql()
	if err != nil {
		return err
	}
	if err := t.execVersioned(ctx, query, args); err != nil {
		if isUniqueViolation(err) {
			return errs.ErrDuplicateEmail
		}
		return errors.Wrap(err, "SaveAccount")
	}

	query, args, err = qb.Delete(borrowedItemsTableName).Where(sq.Eq{"user_id": a.ID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "clear borrowed items")
	}
	if len(a.BorrowedBooks) > 0 {
		ins := qb.Insert(borrowedItemsTableName).Columns(borrowedItemColumns...)
		for i, item := range a.BorrowedBooks {
			ins = ins.Values(a.ID, item.BookID, item.BorrowedAt, item.DueDate, i)
		}
		query, args, err = ins.ToSql()
		if err != nil {
			return err
		}
		if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrap(err, "insert borrowed items")
		}
	}

	a.Version++
	return nil
}

func (t *tx) DeleteBook(ctx context.Context, id string) error {
	query, args, err := t.repo.qb.Delete(booksTableName).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "DeleteBook")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrEntryNotFound
	}
	return nil
}

// execVersioned fails with ErrVersionConflict when the row version moved.
func (t *tx) execVersioned(ctx context.Context, query string, args []interface{}) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}
