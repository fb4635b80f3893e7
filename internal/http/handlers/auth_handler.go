package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/parcel-bookings/internal/domain"
	mw "github.com/diagnosis/parcel-bookings/internal/http/middleware"
	"github.com/diagnosis/parcel-bookings/internal/http/response"
	"github.com/diagnosis/parcel-bookings/internal/service"
	"github.com/diagnosis/parcel-bookings/pkg/auth"
	"github.com/diagnosis/parcel-bookings/pkg/logger"
)

// Middleware is a route-level wrapper such as a rate limiter.
type Middleware = func(http.Handler) http.Handler

func passthrough(next http.Handler) http.Handler { return next }

type AuthHandler struct {
	Accounts    service.AccountService
	Tokens      *auth.TokenManager
	FrontendURL string
	// Limit wraps the abuse-prone public routes. The argument names the route
	// so each one keeps its own counter.
	Limit func(name string) Middleware
}

func NewAuthHandler(accounts service.AccountService, tokens *auth.TokenManager, frontendURL string) *AuthHandler {
	return &AuthHandler{
		Accounts:    accounts,
		Tokens:      tokens,
		FrontendURL: frontendURL,
		Limit:       func(string) Middleware { return passthrough },
	}
}

func (h *AuthHandler) Routes(r chi.Router) {
	r.With(h.Limit("login"), mw.ValidateBody[domain.LoginRequest]).Post("/login", h.login)
	r.With(mw.ValidateBody[domain.RegisterRequest]).Post("/register", h.register)
	r.Get("/verify/{token}", h.verifyEmail)
	r.With(h.Limit("contact"), mw.ValidateBody[domain.ContactRequest]).Post("/contact", h.contact)
	r.With(h.Limit("forget-password"), mw.ValidateBody[domain.ForgetPasswordRequest]).Post("/forget-password", h.forgetPassword)
	r.With(mw.ValidateBody[domain.ResetPasswordRequest]).Post("/reset-password/{token}", h.resetPassword)

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireJWT(h.Tokens))
		r.Get("/userById", h.userByID)
		r.With(mw.ValidateBody[domain.EditUserRequest]).Put("/editUser", h.editUser)
		r.Put("/delUser/{user_id}", h.deleteUser)
	})
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	in := mw.Body[domain.RegisterRequest](r)
	u, err := h.Accounts.Register(r.Context(), in)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "verification email sent",
		"user_id": u.ID,
	})
}

// verifyEmail is opened from the email link in a browser, so both outcomes
// redirect to the frontend.
func (h *AuthHandler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	target := h.FrontendURL + "/verified"
	if err := h.Accounts.VerifyEmail(r.Context(), chi.URLParam(r, "token")); err != nil {
		logger.WarnContext(r.Context(), "email verification failed", "error", err)
		target += "?error=1"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	out, err := h.Accounts.Login(r.Context(), mw.Body[domain.LoginRequest](r))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *AuthHandler) userByID(w http.ResponseWriter, r *http.Request) {
	u, err := h.Accounts.UserByID(r.Context(), mw.UserID(r))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, u)
}

func (h *AuthHandler) editUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Accounts.EditUser(r.Context(), mw.UserID(r), mw.Body[domain.EditUserRequest](r))
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, u)
}

func (h *AuthHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "invalid user id")
		return
	}
	if id != mw.UserID(r) {
		response.Forbidden(w, "cannot delete another user")
		return
	}
	if err := h.Accounts.DeleteUser(r.Context(), id); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

func (h *AuthHandler) contact(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.SendContact(r.Context(), mw.Body[domain.ContactRequest](r)); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"message": "message sent"})
}

func (h *AuthHandler) forgetPassword(w http.ResponseWriter, r *http.Request) {
	in := mw.Body[domain.ForgetPasswordRequest](r)
	if err := h.Accounts.ForgetPassword(r.Context(), in.Email); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"message": "password reset email sent"})
}

func (h *AuthHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	in := mw.Body[domain.ResetPasswordRequest](r)
	if err := h.Accounts.ResetPassword(r.Context(), chi.URLParam(r, "token"), in.NewPassword); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}
