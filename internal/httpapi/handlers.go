// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/caredesk/caredesk/internal/identity"
	"github.com/caredesk/caredesk/pkg/errutil"
)

// Error details mirror what clients already expect from the identity
// endpoint and must not change without coordinating with them.
const (
	detailInvalidCredentials = "Could not validate credentials"
	detailAccountDisabled    = "Account disabled"
	detailMissingFields      = "Username and password are required"
	detailInvalidPhone       = "Invalid phone number format"
	detailInvalidEmail       = "Invalid email format"
)

// Profile field formats: phone numbers are E.164-like (optional +, 10 to
// 15 digits, no leading zero), emails need a plausible local@domain.tld.
var (
	phonePattern = regexp.MustCompile(`^\+?[1-9][0-9]{9,14}$`)
	emailPattern = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.[a-zA-Z]{2,}$`)
)

// Login attempt outcomes recorded against LoginMetrics.
const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeDisabled = "disabled"
	outcomeError    = "error"
)

type contextKey string

const userContextKey contextKey = "user"

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	IsAdmin     bool    `json:"is_admin"`
	IsActive    bool    `json:"is_active"`
}

type updateProfileRequest struct {
	Email       *string `json:"email"`
	PhoneNumber *string `json:"phone_number"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleToken authenticates credentials and issues an access token. The
// body may be JSON or a URL-encoded form.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	creds, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	token, err := s.identity.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		switch errutil.Code(err) {
		case "AUTH_INVALID_CREDENTIALS":
			s.metrics.RecordLoginAttempt(outcomeRejected)
			s.writeDetail(w, http.StatusUnauthorized, detailInvalidCredentials)
		case "AUTH_ACCOUNT_DISABLED":
			s.metrics.RecordLoginAttempt(outcomeDisabled)
			s.writeDetail(w, http.StatusForbidden, detailAccountDisabled)
		default:
			s.metrics.RecordLoginAttempt(outcomeError)
			errutil.LogError(s.logger, "login failed", err)
			s.writeDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	s.metrics.RecordLoginAttempt(outcomeAccepted)
	s.writeJSON(w, http.StatusOK, token)
}

// decodeCredentials reads username and password from a JSON or form body.
func (s *Server) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var creds credentialsRequest

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			s.writeDetail(w, http.StatusBadRequest, "Malformed request body")
			return creds, false
		}
	} else {
		if err := r.ParseForm(); err != nil {
			s.writeDetail(w, http.StatusBadRequest, "Malformed request body")
			return creds, false
		}
		creds.Username = r.PostFormValue("username")
		creds.Password = r.PostFormValue("password")
	}

	if creds.Username == "" || creds.Password == "" {
		s.writeDetail(w, http.StatusBadRequest, detailMissingFields)
		return creds, false
	}
	return creds, true
}

// requireAuth resolves the bearer token to a user and stores it in the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.writeDetail(w, http.StatusUnauthorized, detailInvalidCredentials)
			return
		}

		user, err := s.identity.Authenticate(r.Context(), token)
		if err != nil {
			switch errutil.Code(err) {
			case "AUTH_ACCOUNT_DISABLED":
				s.writeDetail(w, http.StatusForbidden, detailAccountDisabled)
			case "AUTH_TOKEN_INVALID":
				s.writeDetail(w, http.StatusUnauthorized, detailInvalidCredentials)
			default:
				errutil.LogError(s.logger, "token authentication failed", err)
				s.writeDetail(w, http.StatusInternalServerError, "Internal server error")
			}
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

// userFromContext returns the authenticated user set by requireAuth.
func userFromContext(ctx context.Context) (*identity.User, bool) {
	user, ok := ctx.Value(userContextKey).(*identity.User)
	return user, ok
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		s.writeDetail(w, http.StatusUnauthorized, detailInvalidCredentials)
		return
	}
	s.writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		s.writeDetail(w, http.StatusUnauthorized, detailInvalidCredentials)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeDetail(w, http.StatusBadRequest, "Malformed request body")
		return
	}

	if req.PhoneNumber != nil && !phonePattern.MatchString(*req.PhoneNumber) {
		s.writeDetail(w, http.StatusBadRequest, detailInvalidPhone)
		return
	}
	if req.Email != nil && !emailPattern.MatchString(*req.Email) {
		s.writeDetail(w, http.StatusBadRequest, detailInvalidEmail)
		return
	}

	if req.Email != nil {
		user.Email = req.Email
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = req.PhoneNumber
	}
	if req.FirstName != nil {
		user.FirstName = req.FirstName
	}
	if req.LastName != nil {
		user.LastName = req.LastName
	}

	if err := s.identity.UpdateProfile(r.Context(), user); err != nil {
		errutil.LogError(s.logger, "profile update failed", err)
		s.writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		s.writeDetail(w, http.StatusUnauthorized, detailInvalidCredentials)
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeDetail(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		s.writeDetail(w, http.StatusBadRequest, "Current and new password are required")
		return
	}

	if err := s.identity.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword); err != nil {
		// An empty new password never reaches the service; the field
		// check above owns that rule.
		switch errutil.Code(err) {
		case "AUTH_INVALID_CREDENTIALS":
			s.writeDetail(w, http.StatusUnauthorized, detailInvalidCredentials)
		default:
			errutil.LogError(s.logger, "password change failed", err)
			s.writeDetail(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"detail": "Password updated"})
}

func toUserResponse(user *identity.User) userResponse {
	return userResponse{
		ID:          user.ID.String(),
		Username:    user.Username,
		Email:       user.Email,
		PhoneNumber: user.PhoneNumber,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		IsAdmin:     user.IsAdmin,
		IsActive:    user.IsActive,
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encoding failed", "error", err)
	}
}

func (s *Server) writeDetail(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}
