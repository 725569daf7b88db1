// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

// Package session owns the login form state machine. It collects
// credentials, submits them to the identity service exactly once per
// accepted submission, and routes the user onward after a successful
// login. All collaborators are injected; the package holds no global
// state.
package session

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/samber/oops"
)

// DefaultRedirectPath is where a successful login lands when the
// navigation context carries no redirect parameter.
const DefaultRedirectPath = "/dashboard"

// Fallback messages shown inline on the form. Transport failures get a
// distinct message so users are not told their credentials were wrong
// when the real cause was connectivity.
const (
	RejectedFallbackMessage = "Incorrect username or password."
	TransportFailureMessage = "Could not reach the sign-in service. Please try again."
	redirectQueryParam      = "redirect"
)

// Phase is the lifecycle state of the login form.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhaseSucceeded
	PhaseFailed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitting:
		return "submitting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Credentials are the raw form inputs. Presence is the only validation.
type Credentials struct {
	Username string
	Password string
}

// LoginResult is the identity service's answer to a login call.
type LoginResult struct {
	Success bool
	Token   string
	Error   string
}

// FormState is the controller-owned view of the form.
type FormState struct {
	Credentials     Credentials
	Phase           Phase
	ErrorMessage    string
	PasswordVisible bool
}

// IdentityClient performs the login call against the identity service.
// A non-nil error means the call itself failed to complete; rejected
// credentials come back as a result with Success=false.
type IdentityClient interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
}

// Navigator hands off the browser after a successful login.
type Navigator interface {
	Navigate(target string)
}

// Controller drives one login form instance. It is owned by a single
// interaction thread; the Submitting phase is the sole guard against
// concurrent identity calls.
type Controller struct {
	client IdentityClient
	nav    Navigator
	query  url.Values
	logger *slog.Logger

	state FormState
}

// NewController creates a login form controller. query is the current
// navigation context's query parameters.
func NewController(client IdentityClient, nav Navigator, query url.Values) (*Controller, error) {
	return NewControllerWithLogger(client, nav, query, slog.Default())
}

// NewControllerWithLogger creates a login form controller with a custom logger.
func NewControllerWithLogger(client IdentityClient, nav Navigator, query url.Values, logger *slog.Logger) (*Controller, error) {
	if client == nil {
		return nil, oops.Errorf("identity client is required")
	}
	if nav == nil {
		return nil, oops.Errorf("navigator is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if query == nil {
		query = url.Values{}
	}
	return &Controller{client: client, nav: nav, query: query, logger: logger}, nil
}

// State returns a snapshot of the current form state.
func (c *Controller) State() FormState {
	return c.state
}

// SetUsername records the username input.
func (c *Controller) SetUsername(username string) {
	c.state.Credentials.Username = username
}

// SetPassword records the password input.
func (c *Controller) SetPassword(password string) {
	c.state.Credentials.Password = password
}

// TogglePasswordVisible flips whether the password renders masked. It is
// a pure display concern and never touches the submitted value.
func (c *Controller) TogglePasswordVisible() {
	c.state.PasswordVisible = !c.state.PasswordVisible
}

// CanSubmit reports whether a submission would be accepted: both fields
// present and no call in flight.
func (c *Controller) CanSubmit() bool {
	if c.state.Phase == PhaseSubmitting {
		return false
	}
	return c.state.Credentials.Username != "" && c.state.Credentials.Password != ""
}

// Submit runs one login attempt. While a call is in flight further
// Submit invocations are no-ops, so exactly one identity call is made
// per accepted submission. Failed attempts leave the form resubmittable.
func (c *Controller) Submit(ctx context.Context) {
	if !c.CanSubmit() {
		return
	}
	c.state.Phase = PhaseSubmitting
	c.state.ErrorMessage = ""

	result, err := c.client.Login(ctx, c.state.Credentials.Username, c.state.Credentials.Password)
	if err != nil {
		c.logger.WarnContext(ctx, "login call failed", "error", err)
		c.state.Phase = PhaseFailed
		c.state.ErrorMessage = TransportFailureMessage
		return
	}

	if !result.Success {
		c.state.Phase = PhaseFailed
		if result.Error != "" {
			c.state.ErrorMessage = result.Error
		} else {
			c.state.ErrorMessage = RejectedFallbackMessage
		}
		return
	}

	c.state.Phase = PhaseSucceeded
	c.nav.Navigate(c.redirectTarget())
}

// redirectTarget resolves where a successful login lands.
func (c *Controller) redirectTarget() string {
	if target := c.query.Get(redirectQueryParam); target != "" {
		return target
	}
	return DefaultRedirectPath
}
