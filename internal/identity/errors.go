// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package identity

import "errors"

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("not found")
