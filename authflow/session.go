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

package authflow

import (
	"context"
	"net/http"

	"github.com/pubky-network/pubky-go/client"
)

// IntoSession waits for the signer's response and, once it verifies,
// completes the handshake by establishing a session for it on c - the Go
// equivalent of pubky-client's AuthFlow::into_agent. pollHTTPClient is the
// client used to poll the relay; c is a separate client.Client (usually
// with its own PKDNS resolver) used to reach the signed-in user's
// homeserver.
func (f *Flow) IntoSession(ctx context.Context, pollHTTPClient *http.Client, c *client.Client) error {
	t, err := f.WaitForResponse(ctx, pollHTTPClient)
	if err != nil {
		return err
	}
	return c.SigninWithToken(ctx, t)
}
