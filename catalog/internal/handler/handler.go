package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	_ "github.com/Astemirdum/library-catalog/catalog/docs" // swagger spec
	"github.com/Astemirdum/library-catalog/catalog/internal/errs"
	"github.com/Astemirdum/library-catalog/catalog/internal/model"
	"github.com/Astemirdum/library-catalog/pkg/auth"
	md "github.com/Astemirdum/library-catalog/pkg/middleware"
	"github.com/Astemirdum/library-catalog/pkg/validate"
)

type Handler struct {
	librarySvc LibraryService
	tokens     md.TokenParser
	log        *zap.Logger
}

func New(librarySvc LibraryService, tokens md.TokenParser, log *zap.Logger) *Handler {
	return &Handler{
		librarySvc: librarySvc,
		tokens:     tokens,
		log:        log.Named("handler"),
	}
}

// @title Library Catalog API
// @version 1.0
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.HideBanner = true
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))
	e.Validator = validate.NewCustomValidator()

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)
	authn := md.JwtAuthentication(h.tokens)
	admin := md.RequireRole(string(model.RoleAdmin))

	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.GET("/auth/profile", h.Profile, authn)
	api.PUT("/auth/profile", h.UpdateProfile, authn)
	api.PUT("/auth/change-password", h.ChangePassword, authn)
	api.POST("/auth/logout", h.Logout, authn)
	api.POST("/auth/admin/register", h.RegisterAdmin, authn, admin)

	api.GET("/books", h.ListBooks)
	api.GET("/books/available", h.ListAvailableBooks)
	api.GET("/books/search", h.SearchBooks)
	api.GET("/books/:id", h.GetBook)
	api.POST("/books", h.AddBook, authn, admin)
	api.PUT("/books/:id", h.UpdateBook, authn, admin)
	api.DELETE("/books/:id", h.DeleteBook, authn, admin)
	api.PUT("/books/:id/borrow", h.Borrow, authn)
	api.PUT("/books/:id/return", h.Return, authn)

	api.GET("/stats", h.Stats, authn, admin)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func statusOf(kind errs.Kind) int {
	switch kind {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindValidationFailed, errs.KindPreconditionFailed:
		return http.StatusBadRequest
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse maps domain errors to their status; anything else is logged
// and hidden behind a generic 500.
func (h *Handler) errorResponse(err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return echo.NewHTTPError(statusOf(e.Kind), errs.Response{Message: e.Msg, Kind: e.Kind, Code: e.Code})
	}
	h.log.Error("internal error", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, errs.Response{
		Message: "internal server error",
		Kind:    errs.KindInternal,
	})
}

func validationError(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, errs.Response{
		Message: msg,
		Kind:    errs.KindValidationFailed,
		Code:    errs.ErrValidation.Code,
	})
}

// bindAndValidate binds the request, lets the payload normalize itself and
// runs the struct validator.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return validationError("invalid request payload")
	}
	if n, ok := req.(interface{ Normalize() }); ok {
		n.Normalize()
	}
	if err := c.Validate(req); err != nil {
		return validationError(validate.Message(err))
	}
	return nil
}

func principal(c echo.Context) (auth.Principal, error) {
	p, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return auth.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "not authorized")
	}
	return p, nil
}
