package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Astemirdum/library-catalog/catalog/internal/errs"
	"github.com/Astemirdum/library-catalog/catalog/internal/model"
	"github.com/Astemirdum/library-catalog/catalog/internal/repository"
)

func (s *Service) AddBook(ctx context.Context, adminID string, req model.CreateBookRequest) (model.Book, error) {
	req.Normalize()
	if req.Title == "" || req.Author == "" || req.ISBN == "" {
		return model.Book{}, errs.Validation("title, author, and ISBN are required")
	}
	if req.TotalCopies < 1 {
		return model.Book{}, errs.Validation("at least 1 copy is required")
	}

	now := s.clock()
	book := model.Book{
		ID:              uuid.NewString(),
		Title:           req.Title,
		Author:          req.Author,
		ISBN:            req.ISBN,
		Genre:           req.Genre,
		Description:     req.Description,
		PublishedYear:   req.PublishedYear,
		TotalCopies:     req.TotalCopies,
		AvailableCopies: req.TotalCopies,
		AddedBy:         adminID,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateBook(ctx, &book); err != nil {
		return model.Book{}, err
	}
	return book, nil
}

func (s *Service) UpdateBook(ctx context.Context, id string, req model.UpdateBookRequest) (model.Book, error) {
	req.Normalize()
	var updated model.Book
	err := s.runTx(ctx, "update-book", func(ctx context.Context, tx repository.Tx) error {
		book, err := tx.LockBook(ctx, id)
		if err != nil {
			return err
		}
		if req.Title != nil {
			book.Title = *req.Title
		}
		if req.Author != nil {
			book.Author = *req.Author
		}
		if req.ISBN != nil {
			book.ISBN = *req.ISBN
		}
		if req.Genre != nil {
			book.Genre = *req.Genre
			if book.Genre == "" {
				book.Genre = model.DefaultGenre
			}
		}
		if req.Description != nil {
			book.Description = *req.Description
		}
		if req.PublishedYear != nil {
			book.PublishedYear = req.PublishedYear
		}
		if req.TotalCopies != nil {
			if err := book.SetTotalCopies(*req.TotalCopies); err != nil {
				return err
			}
		}
		book.UpdatedAt = s.clock()
		if err := tx.SaveBook(ctx, book); err != nil {
			return err
		}
		updated = *book
		return nil
	})
	if err != nil {
		return model.Book{}, err
	}
	s.cache.Invalidate(ctx, id)
	return updated, nil
}

// DeleteBook refuses while any copy is on loan.
func (s *Service) DeleteBook(ctx context.Context, id string) error {
	err := s.runTx(ctx, "delete-book", func(ctx context.Context, tx repository.Tx) error {
		book, err := tx.LockBook(ctx, id)
		if err != nil {
			return err
		}
		if book.HasActiveLoans() {
			return errs.ErrHasActiveLoans
		}
		return tx.DeleteBook(ctx, id)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	return nil
}

func (s *Service) GetBook(ctx context.Context, id string) (model.Book, error) {
	if book, ok := s.cache.Get(ctx, id); ok {
		return book, nil
	}
	book, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return model.Book{}, err
	}
	s.cache.Set(ctx, book)
	return book, nil
}

func (s *Service) ListBooks(ctx context.Context, q model.ListBooksQuery) (model.ListBooks, error) {
	q.Defaults()
	return s.repo.ListBooks(ctx, q)
}

func (s *Service) ListAvailableBooks(ctx context.Context, q model.ListBooksQuery) (model.ListBooks, error) {
	q.Availability = model.AvailabilityAvailable
	q.Genre = ""
	return s.ListBooks(ctx, q)
}

func (s *Service) SearchBooks(ctx context.Context, term string) ([]model.Book, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errs.Validation("search query is required")
	}
	if utf8.RuneCountInString(term) > 100 {
		return nil, errs.Validation("search query cannot exceed 100 characters")
	}
	return s.repo.SearchBooks(ctx, term, model.SearchLimit)
}
