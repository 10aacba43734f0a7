package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-catalog/catalog/internal/errs"
	"github.com/Astemirdum/library-catalog/catalog/internal/model"
	"github.com/Astemirdum/library-catalog/catalog/internal/repository"
)

// Borrow hands a copy of the book to the user. The book and the account are
// locked in that order and saved in the same transaction.
func (s *Service) Borrow(ctx context.Context, bookID, userID string) (model.BorrowResponse, error) {
	var (
		resp  model.BorrowResponse
		event model.LoanEvent
	)
	err := s.runTx(ctx, "borrow", func(ctx context.Context, tx repository.Tx) error {
		now := s.clock()

		book, err := tx.LockBook(ctx, bookID)
		if err != nil {
			return err
		}
		if !book.IsAvailable || book.AvailableCopies <= 0 {
			return errs.ErrNotAvailable
		}

		acc, err := tx.LockAccount(ctx, userID)
		if err != nil {
			return err
		}
		if !acc.CanBorrowMore() {
			return errs.BorrowLimitExceeded(string(acc.Role), acc.Role.BorrowLimit())
		}
		if acc.HasBorrowed(book.ID) {
			return errs.ErrAlreadyBorrowed
		}

		due, err := book.ReserveCopy(acc.ID, acc.Name, now)
		if err != nil {
			return err
		}
		acc.RecordBorrow(book.ID, now, due)

		book.UpdatedAt = now
		acc.UpdatedAt = now
		if err := tx.SaveBook(ctx, book); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return err
		}

		resp = model.BorrowResponse{BookID: book.ID, Title: book.Title, Author: book.Author, DueDate: due}
		event = model.LoanEvent{
			ID:         uuid.NewString(),
			Type:       model.EventBorrowed,
			BookID:     book.ID,
			UserID:     acc.ID,
			UserName:   acc.Name,
			OccurredAt: now,
			DueDate:    &due,
		}
		return nil
	})
	if err != nil {
		return model.BorrowResponse{}, err
	}

	s.log.Info("borrowed", zap.String("book", bookID), zap.String("user", userID))
	s.cache.Invalidate(ctx, bookID)
	s.publish(ctx, event)
	return resp, nil
}

// Return takes the user's copy back.
func (s *Service) Return(ctx context.Context, bookID, userID string) (model.ReturnResponse, error) {
	var (
		resp  model.ReturnResponse
		event model.LoanEvent
	)
	err := s.runTx(ctx, "return", func(ctx context.Context, tx repository.Tx) error {
		now := s.clock()

		book, err := tx.LockBook(ctx, bookID)
		if err != nil {
			return err
		}
		acc, err := tx.LockAccount(ctx, userID)
		if err != nil {
			return err
		}
		if !acc.HasBorrowed(book.ID) {
			return errs.ErrNotBorrowed
		}

		if err := book.ReleaseCopy(acc.ID, now); err != nil {
			return err
		}
		if err := acc.RecordReturn(book.ID); err != nil {
			return err
		}

		book.UpdatedAt = now
		acc.UpdatedAt = now
		if err := tx.SaveBook(ctx, book); err != nil {
			return err
		}
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return err
		}

		resp = model.ReturnResponse{BookID: book.ID, Title: book.Title, Author: book.Author, AvailableCopies: book.AvailableCopies}
		event = model.LoanEvent{
			ID:         uuid.NewString(),
			Type:       model.EventReturned,
			BookID:     book.ID,
			UserID:     acc.ID,
			UserName:   acc.Name,
			OccurredAt: now,
		}
		return nil
	})
	if err != nil {
		return model.ReturnResponse{}, err
	}

	s.log.Info("returned", zap.String("book", bookID), zap.String("user", userID))
	s.cache.Invalidate(ctx, bookID)
	s.publish(ctx, event)
	return resp, nil
}
