package model

import (
	"strings"
	"time"
)

var isbnSeparators = strings.NewReplacer("-", "", " ", "")

// NormalizeISBN strips dashes and spaces.
func NormalizeISBN(isbn string) string {
	return strings.ToUpper(isbnSeparators.Replace(strings.TrimSpace(isbn)))
}

// NormalizeEmail trims and lower-cases.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type CreateBookRequest struct {
	Title         string `json:"title" validate:"required,max=200"`
	Author        string `json:"author" validate:"required,min=2,max=100"`
	ISBN          string `json:"isbn" validate:"required,isbnformat"`
	Genre         string `json:"genre" validate:"max=50"`
	Description   string `json:"description" validate:"max=1000"`
	PublishedYear *int   `json:"publishedYear" validate:"omitempty,min=1000,notfutureyear"`
	TotalCopies   int    `json:"totalCopies" validate:"min=0,max=1000"`
}

func (r *CreateBookRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Author = strings.TrimSpace(r.Author)
	r.ISBN = NormalizeISBN(r.ISBN)
	r.Genre = strings.TrimSpace(r.Genre)
	if r.Genre == "" {
		r.Genre = DefaultGenre
	}
	r.Description = strings.TrimSpace(r.Description)
	if r.TotalCopies == 0 {
		r.TotalCopies = 1
	}
}

// UpdateBookRequest carries only the fields being changed.
type UpdateBookRequest struct {
	Title         *string `json:"title" validate:"omitempty,min=1,max=200"`
	Author        *string `json:"author" validate:"omitempty,min=2,max=100"`
	ISBN          *string `json:"isbn" validate:"omitempty,isbnformat"`
	Genre         *string `json:"genre" validate:"omitempty,max=50"`
	Description   *string `json:"description" validate:"omitempty,max=1000"`
	PublishedYear *int    `json:"publishedYear" validate:"omitempty,min=1000,notfutureyear"`
	TotalCopies   *int    `json:"totalCopies" validate:"omitempty,min=1,max=1000"`
}

func (r *UpdateBookRequest) Normalize() {
	trim := func(s *string) {
		if s != nil {
			*s = strings.TrimSpace(*s)
		}
	}
	trim(r.Title)
	trim(r.Author)
	trim(r.Genre)
	trim(r.Description)
	if r.ISBN != nil {
		isbn := NormalizeISBN(*r.ISBN)
		r.ISBN = &isbn
	}
}

type Availability string

const (
	AvailabilityAny         Availability = ""
	AvailabilityAvailable   Availability = "available"
	AvailabilityUnavailable Availability = "unavailable"
)

type ListBooksQuery struct {
	Page         int          `query:"page" validate:"min=1,max=1000"`
	Limit        int          `query:"limit" validate:"min=1,max=100"`
	Search       string       `query:"search" validate:"max=100"`
	Genre        string       `query:"genre" validate:"max=50"`
	Availability Availability `query:"availability" validate:"omitempty,oneof=available unavailable"`
}

func (q *ListBooksQuery) Defaults() {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Limit == 0 {
		q.Limit = 10
	}
	q.Search = strings.TrimSpace(q.Search)
	q.Genre = strings.TrimSpace(q.Genre)
}

// SearchLimit caps the quick search result set.
const SearchLimit = 20

type BorrowResponse struct {
	BookID  string    `json:"bookId"`
	Title   string    `json:"title"`
	Author  string    `json:"author"`
	DueDate time.Time `json:"dueDate"`
}

type ReturnResponse struct {
	BookID          string `json:"bookId"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	AvailableCopies int    `json:"availableCopies"`
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = NormalizeEmail(r.Email)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

type UpdateProfileRequest struct {
	Name string `json:"name" validate:"required,min=2,max=50"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=128"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expiresAt"`
	Account   Account   `json:"account"`
}

type Ack struct {
	Message string `json:"message"`
}
