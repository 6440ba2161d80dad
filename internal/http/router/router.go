// Package router wires every handler to its URL.
//
// Route table:
//
//	GET    /                 → users page (HTML)
//	GET    /?user_id=<id>    → one user (JSON)
//	POST   /                 → create a user
//	PUT    /?user_id=<id>    → update a user
//	DELETE /?user_id=<id>    → delete a user
//	GET    /static/...       → embedded JS/CSS
//
// Every request to / other than GET must carry the session's anti-forgery
// token; that check runs before the method dispatch below.
package router

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/chirva-sf/example-php-js/internal/http/handlers/page"
	"github.com/chirva-sf/example-php-js/internal/http/handlers/user"
	"github.com/chirva-sf/example-php-js/internal/http/middleware"
	"github.com/chirva-sf/example-php-js/internal/session"
	"github.com/chirva-sf/example-php-js/internal/storage"
	"github.com/chirva-sf/example-php-js/internal/utils/response"
)

// New returns the application's root handler.
func New(log *slog.Logger, store storage.Storage, sessions *session.Manager, tmpl *template.Template, static http.Handler) http.Handler {
	router := http.NewServeMux()

	router.Handle("GET /static/", static)
	router.HandleFunc("/{$}", middleware.RequireToken(sessions, dispatch(
		page.List(store, sessions, tmpl),
		user.Get(store),
		user.Create(store),
		user.Update(store),
		user.Delete(store),
	)))

	return middleware.Logger(log, router)
}

// dispatch picks a handler from the method and whether user_id is present.
func dispatch(list, get, create, update, remove http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hasID := user.HasID(r)

		switch {
		case r.Method == http.MethodGet && !hasID:
			list(w, r)
		case r.Method == http.MethodGet:
			get(w, r)
		case r.Method == http.MethodPost:
			create(w, r)
		case r.Method == http.MethodPut && hasID:
			update(w, r)
		case r.Method == http.MethodDelete && hasID:
			remove(w, r)
		default:
			response.WriteJSON(w, http.StatusBadRequest, response.Message(response.MsgUnsupportedMethod))
		}
	}
}
