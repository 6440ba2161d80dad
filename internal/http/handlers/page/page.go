// Package page renders the server-side HTML page: the users table and the
// add form. It only reads from storage; every write goes through the JSON
// API in handlers/user.
package page

import (
	"bytes"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/chirva-sf/example-php-js/internal/rowstate"
	"github.com/chirva-sf/example-php-js/internal/session"
	"github.com/chirva-sf/example-php-js/internal/storage"
	"github.com/chirva-sf/example-php-js/internal/types"
	"github.com/chirva-sf/example-php-js/internal/utils/response"
)

// Row is one table row: the record plus the state the browser starts it in.
type Row struct {
	types.User
	Mode rowstate.State
}

// Data is what the "base" template receives.
type Data struct {
	Title       string
	Token       string
	Rows        []Row
	MinAge      int
	MaxAge      int
	Transitions string
}

// List handles GET / without user_id.
//
// A storage failure aborts the page and answers 500 with the store's error
// in the JSON envelope.
func List(store storage.Storage, sessions *session.Manager, tmpl *template.Template) http.HandlerFunc {
	transitions, err := json.Marshal(rowstate.Transitions())
	if err != nil {
		// a map of string-based types always marshals
		panic(err)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("rendering users page")

		sess, err := sessions.Load(w, r)
		if err != nil {
			slog.Error("cannot load session", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		users, err := store.ListUsers(r.Context())
		if err != nil {
			slog.Error("error listing users", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		rows := make([]Row, 0, len(users))
		for _, u := range users {
			rows = append(rows, Row{User: u, Mode: rowstate.Initial(u.ID)})
		}

		data := &Data{
			Title:       "Users",
			Token:       sess.Token,
			Rows:        rows,
			MinAge:      5,
			MaxAge:      120,
			Transitions: string(transitions),
		}

		// Render into a buffer first so a template error can still become
		// a clean 500 instead of a half-written page.
		buf := new(bytes.Buffer)
		if err := tmpl.ExecuteTemplate(buf, "base", data); err != nil {
			slog.Error("error rendering page", slog.String("error", err.Error()))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		buf.WriteTo(w)
	}
}
