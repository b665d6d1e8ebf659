/*
Package handler provides the HTTP handlers and routing setup for the aquahub server.

This file contains the roster endpoint, a read-only HTTP view of the hub's
registry snapshot.
*/
package handler

import (
	"net/http"

	"aquahub/internal/app/user"
	"aquahub/internal/pkg/resp"
)

// HandleListUsers returns the current roster snapshot. The read goes through
// the hub loop, so it is consistent with in-flight mutations.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roster := deps.Hub.Roster()
		if roster == nil {
			roster = []user.UserRecord{}
		}

		resp.RespondSuccess(w, r, roster)
	}
}
