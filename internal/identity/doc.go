// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

// Package identity is the system of record for verifying credentials and
// issuing session tokens. The login form controller in internal/session
// consumes it over HTTP and treats it as a black box.
package identity
