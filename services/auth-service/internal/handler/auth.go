package handler

import (
	"errors"
	"net/http"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/payload"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/usecase"
	"github.com/vasapolrittideah/secure-auth-api/shared/auth"
	"github.com/vasapolrittideah/secure-auth-api/shared/utilities"
)

func (h *authHTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req payload.RegisterRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", validationDetails(err))
		return
	}

	result, err := h.authUsecase.Register(r.Context(), usecase.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrUserAlreadyExists):
			writeError(w, http.StatusConflict, "User with this email already exists", nil)
		case errors.Is(err, usecase.ErrTooManyRequests):
			writeError(w, http.StatusTooManyRequests, "Please wait 1 minute before requesting another email.", nil)
		default:
			h.writeInternalError(w, r, err, "failed to register user")
		}
		return
	}

	if !result.Created {
		writeMessage(w, http.StatusOK, "Confirmation email sent. Please check your inbox.")
		return
	}

	utilities.WriteJSON(w, http.StatusCreated, payload.RegisterResponse{
		Message: "Account created successfully. Please check your email to verify.",
		UserID:  result.User.ID,
	})
}

func (h *authHTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req payload.LoginRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", validationDetails(err))
		return
	}

	result, err := h.authUsecase.Login(r.Context(), usecase.LoginParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
		case errors.Is(err, usecase.ErrAccountNotVerified):
			writeError(w, http.StatusForbidden, "Account not verified",
				"Please check your email to verify your account before logging in.")
		default:
			h.writeInternalError(w, r, err, "failed to log in")
		}
		return
	}

	auth.SetSessionCookie(w, result.SessionToken, h.secureCookies)
	utilities.WriteJSON(w, http.StatusOK, payload.LoginResponse{
		Message: "Login successful",
		User:    toUserResponse(result.User),
	})
}

func (h *authHTTPHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	auth.ClearSessionCookie(w, h.secureCookies)
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (h *authHTTPHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.authUsecase.Me(r.Context(), auth.SessionToken(r))
	if err != nil {
		var message string
		switch {
		case errors.Is(err, usecase.ErrUnauthenticated):
			message = "Missing session cookie"
		case errors.Is(err, usecase.ErrInvalidSession):
			message = "Invalid or expired token"
		case errors.Is(err, usecase.ErrUserNotFound):
			message = "User not found"
		default:
			h.writeInternalError(w, r, err, "failed to resolve session")
			return
		}
		utilities.WriteJSON(w, http.StatusUnauthorized, payload.MeResponse{IsAuthenticated: false, Error: message})
		return
	}

	resp := toUserResponse(user)
	utilities.WriteJSON(w, http.StatusOK, payload.MeResponse{IsAuthenticated: true, User: &resp})
}

func (h *authHTTPHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req payload.VerifyEmailRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing or invalid token", nil)
		return
	}

	err := h.verificationUsecase.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrTokenNotFound):
			writeError(w, http.StatusBadRequest, "Invalid token", nil)
		case errors.Is(err, usecase.ErrTokenExpired):
			writeError(w, http.StatusBadRequest, "Token has expired. Please request a new one.", nil)
		case errors.Is(err, usecase.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User associated with this token no longer exists", nil)
		default:
			h.writeInternalError(w, r, err, "failed to verify email")
		}
		return
	}

	writeMessage(w, http.StatusOK, "Email verified successfully")
}

func toUserResponse(user *model.User) payload.UserResponse {
	return payload.UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		IsVerified: user.Verified,
	}
}
