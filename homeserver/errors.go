// pubky-go is a self-sovereign identity and personal-storage platform.
// Copyright (C) 2024 The pubky-go Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package homeserver

import (
	"errors"
	"net/http"

	"github.com/pubky-network/pubky-go/internal/apperr"
	"github.com/pubky-network/pubky-go/internal/applog"
	"github.com/pubky-network/pubky-go/models"
	"github.com/pubky-network/pubky-go/session"
)

// writeError maps err to the HTTP status table in spec.md §7 and writes a
// plain-text body. An *apperr.Error carries its own status; every other
// error kind is mapped by sentinel or falls back to 500.
func writeError(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		applog.Error.Errorf("homeserver: %s", err)
	}
	http.Error(w, msg, status)
}

func classify(err error) (int, string) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind == apperr.KindRequest {
		return appErr.Status, appErr.Message
	}
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusUnauthorized, "no valid session"
	case errors.Is(err, models.ErrUserNotFound):
		return http.StatusUnauthorized, "no valid session"
	case errors.Is(err, models.ErrEntryNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, models.ErrSignupCodeAlreadyUsed), errors.Is(err, models.ErrSignupCodeNotFound):
		return http.StatusBadRequest, "invalid signup token"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
