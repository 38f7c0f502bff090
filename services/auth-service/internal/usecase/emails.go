package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	verificationEmailSubject  = "Action Required: Verify your email address"
	passwordResetEmailSubject = "Password Reset Request"
)

// EmailSender delivers HTML email.
type EmailSender interface {
	SendHTML(ctx context.Context, to []string, subject, htmlBody string) error
}

func verificationLink(appURL, token string) string {
	return fmt.Sprintf("%s/verify?token=%s", strings.TrimRight(appURL, "/"), token)
}

func passwordResetLink(appURL, token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", strings.TrimRight(appURL, "/"), token)
}

func verificationEmailBody(link string, expiresIn time.Duration) string {
	return fmt.Sprintf(`
		<p>Hi,</p>
		<p>Thank you for signing up! Please verify your email address to access the dashboard.</p>

		<p><a href="%s">Verify Email</a></p>

		<p>Or copy this link into your browser:<br>%s</p>

		<p>This link will expire in %s.</p>
		<p>If you did not create an account, you can safely ignore this email.</p>

		<p>Thank you,</p>
		<p>Secure Auth Team</p>
	`, link, link, expiresIn)
}

func passwordResetEmailBody(link string, expiresIn time.Duration) string {
	return fmt.Sprintf(`
		<p>Hi,</p>
		<p>We received a request to reset the password for your account.</p>
		<p>If you made this request, please click the link below to create a new password:</p>

		<p><a href="%s">%s</a></p>

		<p>This link will expire in %s for your security.</p>
		<p>If you did not request a password reset, you can safely ignore this email. Your account will remain secure.</p>

		<p>Thank you,</p>
		<p>Secure Auth Team</p>
	`, link, link, expiresIn)
}
