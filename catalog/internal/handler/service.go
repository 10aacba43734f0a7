package handler

import (
	"context"

	"github.com/Astemirdum/library-catalog/catalog/internal/model"
	"github.com/Astemirdum/library-catalog/catalog/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type LibraryService interface {
	Borrow(ctx context.Context, bookID, userID string) (model.BorrowResponse, error)
	Return(ctx context.Context, bookID, userID string) (model.ReturnResponse, error)

	AddBook(ctx context.Context, adminID string, req model.CreateBookRequest) (model.Book, error)
	UpdateBook(ctx context.Context, id string, req model.UpdateBookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, id string) error
	GetBook(ctx context.Context, id string) (model.Book, error)
	ListBooks(ctx context.Context, q model.ListBooksQuery) (model.ListBooks, error)
	ListAvailableBooks(ctx context.Context, q model.ListBooksQuery) (model.ListBooks, error)
	SearchBooks(ctx context.Context, term string) ([]model.Book, error)

	Register(ctx context.Context, req model.RegisterRequest, role model.Role) (model.AuthResponse, error)
	Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error)
	Profile(ctx context.Context, userID string) (model.Account, error)
	UpdateProfile(ctx context.Context, userID string, req model.UpdateProfileRequest) (model.Account, error)
	ChangePassword(ctx context.Context, userID string, req model.ChangePasswordRequest) error

	RecordLoanEvent(ctx context.Context, event model.LoanEvent) error
	LoanStats(ctx context.Context) ([]model.UserStats, error)
}

var _ LibraryService = (*service.Service)(nil)
