// Package middleware holds http.HandlerFunc wrappers shared by all routes.
package middleware

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/chirva-sf/example-php-js/internal/session"
	"github.com/chirva-sf/example-php-js/internal/utils/response"
)

// MaxBodyBytes caps request bodies on state-changing requests.
const MaxBodyBytes = 1 << 20

// TokenHeader is the request header the page uses to send the token.
const TokenHeader = "Token"

// ErrTokenMismatch is logged when a state-changing request carries no token
// or the wrong one.
var ErrTokenMismatch = errors.New("anti-forgery token mismatch")

// RequireToken rejects every non-GET request whose anti-forgery token does
// not match the session's, before next sees it. The token is read, in
// order, from the "token" field of a form-encoded body, the Token header,
// and the "token" field of a JSON body.
//
// The body is buffered and put back on r so next can decode it again.
func RequireToken(sessions *session.Manager, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			next(w, r)
			return
		}

		sess, err := sessions.Load(w, r)
		if err != nil {
			slog.Error("cannot load session", slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusInternalServerError, response.GeneralError(err))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest, response.Message(response.MsgInvalidData))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if !tokenMatches(submittedToken(r, body), sess.Token) {
			slog.Warn("request rejected",
				slog.String("method", r.Method),
				slog.String("error", ErrTokenMismatch.Error()))
			response.WriteJSON(w, http.StatusForbidden, response.Message(response.MsgTokenMismatch))
			return
		}

		next(w, r)
	}
}

func submittedToken(r *http.Request, body []byte) string {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/x-www-form-urlencoded" {
		if values, err := url.ParseQuery(string(body)); err == nil && values.Has("token") {
			return values.Get("token")
		}
		return r.Header.Get(TokenHeader)
	}

	if token := r.Header.Get(TokenHeader); token != "" {
		return token
	}

	if len(body) > 0 {
		var payload struct {
			Token *string `json:"token"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.Token != nil {
			return *payload.Token
		}
	}

	return ""
}

func tokenMatches(submitted, expected string) bool {
	if submitted == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(expected)) == 1
}

// statusRecorder remembers the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Logger logs one line per request with method, path, status and duration.
func Logger(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		log.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.RequestURI()),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
