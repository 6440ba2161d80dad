// Package user contains the JSON API handlers for the user resource.
//
// Each handler is built by a factory that receives its dependencies and
// returns the http.HandlerFunc the router needs:
//
//	user.Create(storage)   // called ONCE at startup
//	                       // the returned func runs on EVERY request
//
// All handlers answer with the envelope from utils/response. The record id
// always comes from the user_id query parameter.
package user

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/chirva-sf/example-php-js/internal/http/middleware"
	"github.com/chirva-sf/example-php-js/internal/storage"
	"github.com/chirva-sf/example-php-js/internal/types"
	"github.com/chirva-sf/example-php-js/internal/utils/response"
	"github.com/chirva-sf/example-php-js/internal/validation"
)

// IDParam is the query parameter that names a record.
const IDParam = "user_id"

// HasID reports whether the request names a record, whatever its value.
func HasID(r *http.Request) bool {
	return r.URL.Query().Has(IDParam)
}

// Get handles GET ?user_id=<id>.
//
// Success response (200 OK):
//
//	{ "success": true, "data": { "id": 1, "email": "...", "first_name": "...",
//	  "last_name": "...", "age": 30, "created": "05.03.2024 09:07" } }
//
// Error responses:
//
//	404 Not Found — no such user
//	500 Internal  — database error
func Get(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := existingID(w, r, store)
		if !ok {
			return
		}

		user, err := store.GetUser(r.Context(), id)
		if errors.Is(err, storage.ErrUserNotFound) {
			response.WriteJSON(w, http.StatusNotFound, response.Message(response.MsgUserNotFound))
			return
		}
		if err != nil {
			storeFailure(w, "error getting user", id, err)
			return
		}

		response.WriteJSON(w, http.StatusOK, response.Success(user))
	}
}

// Create handles POST.
//
// Request body (JSON):
//
//	{ "email": "a@b.com", "first_name": "A", "last_name": "B", "age": 30 }
//
// Success response (201 Created):
//
//	{ "success": true, "data": { "user_id": 1 } }
//
// Error responses:
//
//	400 Bad Request — body is not valid JSON
//	200 OK          — success=false, validation messages joined by ", "
//	500 Internal    — database error
func Create(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating a user")

		in, ok := decodeInput(w, r)
		if !ok {
			return
		}

		if !validInput(w, in) {
			return
		}

		lastID, err := store.CreateUser(r.Context(), in)
		if err != nil {
			storeFailure(w, "error creating user", 0, err)
			return
		}

		slog.Info("user created", slog.Int64("id", lastID))
		response.WriteJSON(w, http.StatusCreated, response.Success(map[string]int64{"user_id": lastID}))
	}
}

// Update handles PUT ?user_id=<id>. The body is the same as for Create,
// plus an optional "created" in the display layout ("" means now).
//
// Checks run in this order: body → existence → validation → write.
func Update(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := decodeInput(w, r)
		if !ok {
			return
		}

		id, ok := existingID(w, r, store)
		if !ok {
			return
		}
		slog.Info("updating a user", slog.Int64("id", id))

		if !validInput(w, in) {
			return
		}

		if err := store.UpdateUser(r.Context(), id, in); err != nil {
			storeFailure(w, "error updating user", id, err)
			return
		}

		slog.Info("user updated", slog.Int64("id", id))
		response.WriteJSON(w, http.StatusOK, response.Success(nil))
	}
}

// Delete handles DELETE ?user_id=<id>.
func Delete(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := existingID(w, r, store)
		if !ok {
			return
		}
		slog.Info("deleting a user", slog.Int64("id", id))

		if err := store.DeleteUser(r.Context(), id); err != nil {
			storeFailure(w, "error deleting user", id, err)
			return
		}

		slog.Info("user deleted", slog.Int64("id", id))
		response.WriteJSON(w, http.StatusOK, response.Success(nil))
	}
}

// existingID parses user_id and confirms the record exists, writing the
// 404/500 response itself when it does not. An id that is not a positive
// integer cannot exist, so it is a 404 as well.
func existingID(w http.ResponseWriter, r *http.Request, store storage.Storage) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get(IDParam), 10, 64)
	if err != nil || id <= 0 {
		response.WriteJSON(w, http.StatusNotFound, response.Message(response.MsgUserNotFound))
		return 0, false
	}

	exists, err := store.UserExists(r.Context(), id)
	if err != nil {
		storeFailure(w, "error checking user", id, err)
		return 0, false
	}
	if !exists {
		response.WriteJSON(w, http.StatusNotFound, response.Message(response.MsgUserNotFound))
		return 0, false
	}

	return id, true
}

// decodeInput reads the JSON body. Only a body that is not JSON at all
// (empty, truncated, a syntax error or trailing data) is a 400; any
// well-formed value decodes, and a wrong shape is left to validation.
func decodeInput(w http.ResponseWriter, r *http.Request) (types.UserInput, bool) {
	var in types.UserInput

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, middleware.MaxBodyBytes))
	err := dec.Decode(&in)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON value")
	}
	if err != nil {
		slog.Debug("malformed request body", slog.String("error", err.Error()))
		response.WriteJSON(w, http.StatusBadRequest, response.Message(response.MsgInvalidData))
		return types.UserInput{}, false
	}

	return in, true
}

// validInput runs validation and, on failure, answers 200 with
// success=false so the page shows the messages next to the form.
func validInput(w http.ResponseWriter, in types.UserInput) bool {
	err := validation.Validate(in)
	if err == nil {
		return true
	}

	var verr *validation.Error
	if errors.As(err, &verr) {
		response.WriteJSON(w, http.StatusOK, response.ValidationError(verr))
		return false
	}

	response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
	return false
}

func storeFailure(w http.ResponseWriter, msg string, id int64, err error) {
	slog.Error(msg,
		slog.Int64("id", id),
		slog.String("error", err.Error()))
	response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
}
