package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Astemirdum/library-catalog/catalog/internal/model"
	"github.com/Astemirdum/library-catalog/pkg/validate"
)

// ListBooks godoc
// @Summary List books
// @Tags books
// @Produce json
// @Param page query int false "page, default 1"
// @Param limit query int false "page size, default 10"
// @Param search query string false "title, author or ISBN substring"
// @Param genre query string false "genre substring"
// @Param availability query string false "available | unavailable"
// @Success 200 {object} model.ListBooks
// @Failure 400 {object} errs.Response
// @Router /books [get]
func (h *Handler) ListBooks(c echo.Context) error {
	var q model.ListBooksQuery
	if err := c.Bind(&q); err != nil {
		return validationError("invalid query parameters")
	}
	q.Defaults()
	if err := c.Validate(&q); err != nil {
		return validationError(validate.Message(err))
	}
	books, err := h.librarySvc.ListBooks(c.Request().Context(), q)
	if err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusOK, books)
}

// ListAvailableBooks godoc
// @Summary List books with at least one free copy
// @Tags books
// @Produce json
// @Param page query int false "page, default 1"
// @Param limit query int false "page size, default 10"
// @Param search query string false "title or author substring"
// @Success 200 {object} model.ListBooks
// @Router /books/available [get]
func (h *Handler) ListAvailableBooks(c echo.Context) error {
	var q model.ListBooksQuery
	if err := c.Bind(&q); err != nil {
		return validationError("invalid query parameters")
	}
	q.Defaults()
	q.Availability = model.AvailabilityAvailable
	if err := c.Validate(&q); err != nil {
		return validationError(validate.Message(err))
	}
	books, err := h.librarySvc.ListAvailableBooks(c.Request().Context(), q)
	if err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusOK, books)
}

// SearchBooks godoc
// @Summary Quick search by title, author, genre or ISBN
// @Tags books
// @Produce json
// @Param q query string true "search term"
// @Success 200 {array} model.Book
// @Failure 400 {object} errs.Response
// @Router /books/search [get]
func (h *Handler) SearchBooks(c echo.Context) error {
	books, err := h.librarySvc.SearchBooks(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusOK, books)
}

// GetBook godoc
// @Summary Book details with active loans and history
// @Tags books
// @Produce json
// @Param id path string true "book id"
// @Success 200 {object} model.Book
// @Failure 404 {object} errs.Response
// @Router /books/{id} [get]
func (h *Handler) GetBook(c echo.Context) error {
	book, err := h.librarySvc.GetBook(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusOK, book)
}

// AddBook godoc
// @Summary Add a book
// @Tags books
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param book body model.CreateBookRequest true "book"
// @Success 201 {object} model.Book
// @Failure 400 {object} errs.Response
// @Router /books [post]
func (h *Handler) AddBook(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req model.CreateBookRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	book, err := h.librarySvc.AddBook(c.Request().Context(), p.ID, req)
	if err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusCreated, book)
}

// UpdateBook godoc
// @Summary Update a book
// @Tags books
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "book id"
// @Param book body model.UpdateBookRequest true "changed fields"
// @Success 200 {object} model.Book
// @Failure 400 {object} errs.Response
// @Failure 404 {object} errs.Response
// @Router /books/{id} [put]
func (h *Handler) UpdateBook(c echo.Context) error {
	var req model.UpdateBookRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	book, err := h.librarySvc.UpdateBook(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusOK, book)
}

// DeleteBook godoc
// @Summary Delete a book without active loans
// @Tags books
// @Security BearerAuth
// @Produce json
// @Param id path string true "book id"
// @Success 200 {object} model.Ack
// @Failure 400 {object} errs.Response
// @Failure 404 {object} errs.Response
// @Router /books/{id} [delete]
func (h *Handler) DeleteBook(c echo.Context) error {
	if err := h.librarySvc.DeleteBook(c.Request().Context(), c.Param("id")); err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusOK, model.Ack{Message: "book deleted successfully"})
}

// Borrow godoc
// @Summary Borrow a copy
// @Tags lending
// @Security BearerAuth
// @Produce json
// @Param id path string true "book id"
// @Success 200 {object} model.BorrowResponse
// @Failure 400 {object} errs.Response
// @Failure 404 {object} errs.Response
// @Failure 409 {object} errs.Response
// @Router /books/{id}/borrow [put]
func (h *Handler) Borrow(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	resp, err := h.librarySvc.Borrow(c.Request().Context(), c.Param("id"), p.ID)
	if err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Return godoc
// @Summary Return a borrowed copy
// @Tags lending
// @Security BearerAuth
// @Produce json
// @Param id path string true "book id"
// @Success 200 {object} model.ReturnResponse
// @Failure 400 {object} errs.Response
// @Failure 404 {object} errs.Response
// @Failure 409 {object} errs.Response
// @Router /books/{id}/return [put]
func (h *Handler) Return(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	resp, err := h.librarySvc.Return(c.Request().Context(), c.Param("id"), p.ID)
	if err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Stats godoc
// @Summary Per-user lending activity
// @Tags stats
// @Security BearerAuth
// @Produce json
// @Success 200 {array} model.UserStats
// @Router /stats [get]
func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.librarySvc.LoanStats(c.Request().Context())
	if err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusOK, stats)
}
