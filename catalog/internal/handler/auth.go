package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Astemirdum/library-catalog/catalog/internal/model"
)

// Register godoc
// @Summary Register a member
// @Tags auth
// @Accept json
// @Produce json
// @Param user body model.RegisterRequest true "user"
// @Success 201 {object} model.AuthResponse
// @Failure 400 {object} errs.Response
// @Router /auth/register [post]
func (h *Handler) Register(c echo.Context) error {
	return h.register(c, model.RoleMember)
}

// RegisterAdmin godoc
// @Summary Register an administrator
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param user body model.RegisterRequest true "user"
// @Success 201 {object} model.AuthResponse
// @Failure 400 {object} errs.Response
// @Router /auth/admin/register [post]
func (h *Handler) RegisterAdmin(c echo.Context) error {
	return h.register(c, model.RoleAdmin)
}

func (h *Handler) register(c echo.Context, role model.Role) error {
	var req model.RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	resp, err := h.librarySvc.Register(c.Request().Context(), req, role)
	if err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login godoc
// @Summary Exchange credentials for a token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body model.LoginRequest true "credentials"
// @Success 200 {object} model.AuthResponse
// @Failure 401 {object} errs.Response
// @Router /auth/login [post]
func (h *Handler) Login(c echo.Context) error {
	var req model.LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	resp, err := h.librarySvc.Login(c.Request().Context(), req)
	if err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Profile godoc
// @Summary Current user
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} model.Account
// @Router /auth/profile [get]
func (h *Handler) Profile(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	acc, err := h.librarySvc.Profile(c.Request().Context(), p.ID)
	if err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusOK, acc)
}

// UpdateProfile godoc
// @Summary Rename the current user
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param profile body model.UpdateProfileRequest true "profile"
// @Success 200 {object} model.Account
// @Router /auth/profile [put]
func (h *Handler) UpdateProfile(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req model.UpdateProfileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	acc, err := h.librarySvc.UpdateProfile(c.Request().Context(), p.ID, req)
	if err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusOK, acc)
}

// ChangePassword godoc
// @Summary Change the current user's password
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param passwords body model.ChangePasswordRequest true "passwords"
// @Success 200 {object} model.Ack
// @Failure 400 {object} errs.Response
// @Router /auth/change-password [put]
func (h *Handler) ChangePassword(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req model.ChangePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.librarySvc.ChangePassword(c.Request().Context(), p.ID, req); err != nil {
		return h.errorResponse(err)
	}
	return c.JSON(http.StatusOK, model.Ack{Message: "password changed successfully"})
}

// Logout godoc
// @Summary Tokens are stateless; the client drops its copy
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} model.Ack
// @Router /auth/logout [post]
func (h *Handler) Logout(c echo.Context) error {
	return c.JSON(http.StatusOK, model.Ack{Message: "logged out successfully"})
}
