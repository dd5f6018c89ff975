// Auth HTTP handlers.
//
// This file exposes the account and session endpoints:
//   - POST   /login    (sign in, anonymous only)
//   - DELETE /login    (sign out, authenticated only)
//   - GET    /session  (current user or null)
//   - POST   /signup   (create account and sign in, anonymous only)
//   - DELETE /signup   (delete account, authenticated only)
//
// Guards are applied by the router; handlers assume the session resolved by
// middleware.Sessions is present in the context.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-portfolio-backend/internal/domain"
	"github.com/tbourn/go-portfolio-backend/internal/http/middleware"
	"github.com/tbourn/go-portfolio-backend/internal/services"
	"github.com/tbourn/go-portfolio-backend/internal/session"
)

// AuthService defines account operations consumed by the auth handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AuthService interface {
	// Authenticate verifies a username and password pair.
	Authenticate(ctx context.Context, username, password string) (*domain.User, error)
	// Register validates a signup and creates the account.
	Register(ctx context.Context, username, password1, password2 string) (*domain.User, error)
	// DeleteAccount removes the account of userID.
	DeleteAccount(ctx context.Context, userID string) error
}

// AuthHandlers groups the account and session endpoints.
type AuthHandlers struct {
	svc      AuthService
	sessions *session.Manager
}

// NewAuthHandlers constructs AuthHandlers.
func NewAuthHandlers(svc AuthService, sessions *session.Manager) *AuthHandlers {
	return &AuthHandlers{svc: svc, sessions: sessions}
}

//
// DTOs
//

// LoginRequest is the payload of POST /login. JSON and form bodies are
// both accepted.
type LoginRequest struct {
	Username string `json:"username" form:"username" example:"alice"`
	Password string `json:"password" form:"password" example:"correct horse"`
}

// SignupRequest is the payload of POST /signup.
type SignupRequest struct {
	Username  string `json:"username" form:"username" example:"alice"`
	Password1 string `json:"password1" form:"password1" example:"correct horse"`
	Password2 string `json:"password2" form:"password2" example:"correct horse"`
}

// UserResponse wraps a user; the password hash is never serialized.
type UserResponse struct {
	User *domain.User `json:"user"`
}

//
// Handlers
//

// Login godoc
// @Summary      Sign in
// @Description  Verifies the credentials and binds a freshly generated session to the user.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      LoginRequest  true  "Credentials"
// @Success      200   {object}  UserResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      429   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /login [post]
func (h *AuthHandlers) Login(c *gin.Context) {
	var req LoginRequest
	_ = c.ShouldBind(&req) // missing fields are reported by the service

	u, err := h.svc.Authenticate(c.Request.Context(), req.Username, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrMissingCredentials),
		errors.Is(err, services.ErrUnknownUser),
		errors.Is(err, services.ErrIncorrectPassword):
		outcome("login", "rejected")
		fail(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, err.Error())
		return
	default:
		outcome("login", "error")
		internalError(c, err)
		return
	}

	if !h.signIn(c, u) {
		outcome("login", "error")
		return
	}
	outcome("login", "success")
	ok(c, http.StatusOK, UserResponse{User: u})
}

// Logout godoc
// @Summary      Sign out
// @Tags         auth
// @Success      204
// @Failure      401  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /login [delete]
func (h *AuthHandlers) Logout(c *gin.Context) {
	if err := h.sessions.Destroy(c.Request.Context(), middleware.SessionFrom(c)); err != nil {
		outcome("logout", "error")
		internalError(c, err)
		return
	}
	middleware.ClearSession(c, h.sessions)
	outcome("logout", "success")
	noContent(c)
}

// Session godoc
// @Summary      Current user
// @Description  Returns the signed-in user, or null for anonymous visitors.
// @Tags         auth
// @Produce      json
// @Success      200  {object}  UserResponse
// @Router       /session [get]
func (h *AuthHandlers) Session(c *gin.Context) {
	var u *domain.User
	if st := middleware.SessionFrom(c); st.Authenticated() {
		u = st.User
	}
	ok(c, http.StatusOK, UserResponse{User: u})
}

// Signup godoc
// @Summary      Create account
// @Description  Validates the signup, creates the account and signs it in.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      SignupRequest  true  "New account"
// @Success      201   {object}  UserResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      401   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /signup [post]
func (h *AuthHandlers) Signup(c *gin.Context) {
	var req SignupRequest
	_ = c.ShouldBind(&req)

	u, err := h.svc.Register(c.Request.Context(), req.Username, req.Password1, req.Password2)
	if err != nil {
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			outcome("signup", "rejected")
			fail(c, http.StatusBadRequest, ErrCodeValidation, ve.Msg)
			return
		}
		outcome("signup", "error")
		internalError(c, err)
		return
	}

	if !h.signIn(c, u) {
		outcome("signup", "error")
		return
	}
	outcome("signup", "success")
	ok(c, http.StatusCreated, UserResponse{User: u})
}

// DeleteAccount godoc
// @Summary      Delete account
// @Description  Destroys the session, then deletes the signed-in account.
// @Tags         auth
// @Success      204
// @Failure      401  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /signup [delete]
func (h *AuthHandlers) DeleteAccount(c *gin.Context) {
	ctx := c.Request.Context()
	st := middleware.SessionFrom(c)
	if !st.Authenticated() {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, middleware.LoginRequiredMessage)
		return
	}
	userID := st.User.ID

	if err := h.sessions.Destroy(ctx, st); err != nil {
		outcome("delete", "error")
		internalError(c, err)
		return
	}
	middleware.ClearSession(c, h.sessions)

	if err := h.svc.DeleteAccount(ctx, userID); err != nil {
		outcome("delete", "error")
		internalError(c, err)
		return
	}
	outcome("delete", "success")
	noContent(c)
}

// signIn regenerates the session for u. It writes the error response itself
// and reports whether the caller may continue.
func (h *AuthHandlers) signIn(c *gin.Context, u *domain.User) bool {
	st, err := h.sessions.Login(c.Request.Context(), middleware.SessionFrom(c), u)
	if err != nil {
		internalError(c, err)
		return false
	}
	middleware.SetSession(c, h.sessions, st)
	return true
}

func outcome(op, result string) {
	middleware.AuthOutcomes.WithLabelValues(op, result).Inc()
}
