package handler

import (
	"errors"
	"net/http"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/payload"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/usecase"
)

func (h *authHTTPHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req payload.ForgotPasswordRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email address", nil)
		return
	}

	if err := h.passwordResetUsecase.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeInternalError(w, r, err, "failed to request password reset")
		return
	}

	writeMessage(w, http.StatusOK, "If an account exists, a reset email has been sent.")
}

func (h *authHTTPHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req payload.ResetPasswordRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid data or passwords do not match", validationDetails(err))
		return
	}

	err := h.passwordResetUsecase.ResetPassword(r.Context(), req.Token, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrTokenNotFound):
			writeError(w, http.StatusBadRequest, "Invalid or missing token", nil)
		case errors.Is(err, usecase.ErrTokenExpired):
			writeError(w, http.StatusBadRequest, "Token has expired. Please request a new one.", nil)
		case errors.Is(err, usecase.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found", nil)
		default:
			h.writeInternalError(w, r, err, "failed to reset password")
		}
		return
	}

	writeMessage(w, http.StatusOK, "Password reset successfully")
}
