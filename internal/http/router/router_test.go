package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/chirva-sf/example-php-js/internal/config"
	"github.com/chirva-sf/example-php-js/internal/session"
	"github.com/chirva-sf/example-php-js/internal/storage"
	"github.com/chirva-sf/example-php-js/internal/storage/sqlite"
	"github.com/chirva-sf/example-php-js/internal/types"
	"github.com/chirva-sf/example-php-js/web"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBody = `{"email":"a@b.com","first_name":"A","last_name":"B","age":30}`

var tokenMeta = regexp.MustCompile(`<meta name="csrf-token" content="([0-9a-f]{64})">`)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testApp struct {
	t       *testing.T
	handler http.Handler
	cookie  *http.Cookie
	token   string
}

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.Storage{Driver: config.DriverSQLite, Path: ":memory:", Timezone: "UTC"},
		Session: config.Session{CookieName: "sid", TTL: time.Hour},
	}
}

func newTestApp(t *testing.T, store storage.Storage) *testApp {
	t.Helper()

	cfg := testConfig()
	clock := clockwork.NewFakeClockAt(time.Date(2024, time.March, 5, 9, 7, 0, 0, time.UTC))

	if store == nil {
		s, err := sqlite.New(cfg, clock)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		store = s
	}

	tmpl, err := web.Templates()
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := &testApp{
		t:       t,
		handler: New(log, store, session.NewManager(cfg.Session, clock), tmpl, web.Static()),
	}

	return app
}

// startSession loads the page once, keeping the session cookie and the
// token embedded in the page.
func (a *testApp) startSession() {
	a.t.Helper()

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(a.t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(a.t, cookies, 1)
	a.cookie = cookies[0]

	m := tokenMeta.FindStringSubmatch(rec.Body.String())
	require.NotNil(a.t, m, "page must embed the csrf token")
	a.token = m[1]
}

func (a *testApp) do(method, target, body, token string) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if a.cookie != nil {
		req.AddCookie(a.cookie)
	}
	if token != "" {
		req.Header.Set("Token", token)
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func (a *testApp) create(body string) int64 {
	a.t.Helper()

	rec := a.do(http.MethodPost, "/", body, a.token)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	var data struct {
		UserID int64 `json:"user_id"`
	}
	require.NoError(a.t, json.Unmarshal(decode(a.t, rec).Data, &data))
	return data.UserID
}

func TestCreate_Returns201WithID(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()

	rec := app.do(http.MethodPost, "/", validBody, app.token)

	assert.Equal(t, http.StatusCreated, rec.Code)
	env := decode(t, rec)
	assert.True(t, env.Success)

	var data map[string]int64
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Positive(t, data["user_id"])
}

func TestCreate_TokenInBody(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()

	body := `{"token":"` + app.token + `","email":"a@b.com","first_name":"A","last_name":"B","age":"30"}`
	rec := app.do(http.MethodPost, "/", body, "")

	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreate_HeaderTokenBeatsStaleBodyToken(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()

	body := `{"token":"stale","email":"a@b.com","first_name":"A","last_name":"B","age":30}`
	rec := app.do(http.MethodPost, "/", body, app.token)

	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreate_ValidationFailureIsSoft(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()

	rec := app.do(http.MethodPost, "/", `{"email":"a@b.com","first_name":"A","last_name":"B","age":200}`, app.token)

	assert.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, `Field "Age" must be between 5 and 120 years`)
}

func TestCreate_JoinsAllMessages(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()

	rec := app.do(http.MethodPost, "/", `{"email":"bad","age":""}`, app.token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		`Invalid email format in field "Email", Required field "First name" is missing, `+
			`Required field "Last name" is missing, Required field "Age" is missing`,
		decode(t, rec).Error)
}

func TestCreate_MalformedJSON(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()

	for _, body := range []string{"", "{", `{"email":}`, validBody + " trailing", "[1,"} {
		rec := app.do(http.MethodPost, "/", body, app.token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Invalid data format", decode(t, rec).Error, body)
	}
}

func TestCreate_WrongShapesAreValidated(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()

	allMissing := `Required field "Email" is missing, Required field "First name" is missing, ` +
		`Required field "Last name" is missing, Required field "Age" is missing`

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "number as email",
			body: `{"email":5,"first_name":"A","last_name":"B","age":30}`,
			want: `Invalid email format in field "Email"`,
		},
		{
			name: "array as first name",
			body: `{"email":"a@b.com","first_name":["x"],"last_name":"B","age":30}`,
			want: `Required field "First name" is missing`,
		},
		{
			name: "array as age",
			body: `{"email":"a@b.com","first_name":"A","last_name":"B","age":[30]}`,
			want: `Field "Age" must be between 5 and 120 years`,
		},
		{name: "top level array", body: `[]`, want: allMissing},
		{name: "top level string", body: `"text"`, want: allMissing},
		{name: "top level null", body: `null`, want: allMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodPost, "/", tt.body, app.token)

			assert.Equal(t, http.StatusOK, rec.Code)
			env := decode(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, tt.want, env.Error)
		})
	}
}

func TestUpdate_WrongCreatedTypeIsValidated(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()
	app.create(validBody)

	rec := app.do(http.MethodPut, "/?user_id=1",
		`{"email":"a@b.com","first_name":"A","last_name":"B","age":30,"created":5}`, app.token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `Invalid date and time format in field "Created"`, decode(t, rec).Error)
}

func TestTokenRequiredForMutations(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()
	id := app.create(validBody)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		token  string
	}{
		{name: "post missing token", method: http.MethodPost, target: "/", body: validBody},
		{name: "post wrong token", method: http.MethodPost, target: "/", body: validBody, token: strings.Repeat("0", 64)},
		{name: "post malformed body", method: http.MethodPost, target: "/", body: "{", token: "nope"},
		{name: "post invalid body", method: http.MethodPost, target: "/", body: `{"age":500}`},
		{name: "put wrong token", method: http.MethodPut, target: "/?user_id=1", body: validBody, token: "nope"},
		{name: "put missing user", method: http.MethodPut, target: "/?user_id=999", body: validBody},
		{name: "delete missing token", method: http.MethodDelete, target: "/?user_id=1"},
		{name: "patch missing token", method: http.MethodPatch, target: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.target, tt.body, tt.token)

			assert.Equal(t, http.StatusForbidden, rec.Code)
			env := decode(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, "Token verification failed", env.Error)
		})
	}

	// the record survived every rejected request
	rec := app.do(http.MethodGet, "/?user_id=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var user types.User
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &user))
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "a@b.com", user.Email)
}

func TestTokenFromAnotherSession(t *testing.T) {
	alice := newTestApp(t, nil)
	alice.startSession()

	bob := &testApp{t: t, handler: alice.handler}
	bob.startSession()

	rec := bob.do(http.MethodPost, "/", validBody, alice.token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMutationWithoutSession(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.do(http.MethodPost, "/", validBody, "anything")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGet(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()
	id := app.create(validBody)

	rec := app.do(http.MethodGet, "/?user_id=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	env := decode(t, rec)
	assert.True(t, env.Success)

	var user types.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "a@b.com", user.Email)
	assert.Equal(t, "A", user.FirstName)
	assert.Equal(t, "B", user.LastName)
	assert.Equal(t, 30, user.Age)
	assert.Equal(t, "05.03.2024 09:07", user.Created)

	for _, target := range []string{"/?user_id=2", "/?user_id=abc", "/?user_id=-1", "/?user_id="} {
		rec := app.do(http.MethodGet, target, "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, "User not found", decode(t, rec).Error, target)
	}
}

func TestUpdate(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()
	app.create(validBody)

	rec := app.do(http.MethodPut, "/?user_id=1",
		`{"email":"new@b.com","first_name":"N","last_name":"M","age":"44","created":"01.01.2020 12:00"}`, app.token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"data":null}`, rec.Body.String())

	var user types.User
	require.NoError(t, json.Unmarshal(decode(t, app.do(http.MethodGet, "/?user_id=1", "", "")).Data, &user))
	assert.Equal(t, "new@b.com", user.Email)
	assert.Equal(t, 44, user.Age)
	assert.Equal(t, "01.01.2020 12:00", user.Created)
}

func TestUpdate_Errors(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()
	app.create(validBody)

	tests := []struct {
		name     string
		target   string
		body     string
		status   int
		contains string
	}{
		{name: "missing user", target: "/?user_id=999", body: validBody, status: http.StatusNotFound, contains: "User not found"},
		{name: "malformed before existence", target: "/?user_id=999", body: "{", status: http.StatusBadRequest, contains: "Invalid data format"},
		{name: "invalid fields", target: "/?user_id=1", body: `{"email":"a@b.com","first_name":"A","last_name":"B","age":3}`, status: http.StatusOK, contains: "between 5 and 120"},
		{name: "invalid created", target: "/?user_id=1", body: `{"email":"a@b.com","first_name":"A","last_name":"B","age":30,"created":"31.02.2024 10:00"}`, status: http.StatusOK, contains: `field "Created"`},
		{name: "no id", target: "/", body: validBody, status: http.StatusBadRequest, contains: "Unsupported method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(http.MethodPut, tt.target, tt.body, app.token)

			assert.Equal(t, tt.status, rec.Code)
			env := decode(t, rec)
			assert.False(t, env.Success)
			assert.Contains(t, env.Error, tt.contains)
		})
	}
}

func TestDelete(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()
	app.create(validBody)

	rec := app.do(http.MethodDelete, "/?user_id=1", "", app.token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)

	rec = app.do(http.MethodDelete, "/?user_id=1", "", app.token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.do(http.MethodGet, "/?user_id=1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnsupportedMethods(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()

	for _, tc := range []struct{ method, target string }{
		{http.MethodPatch, "/?user_id=1"},
		{http.MethodDelete, "/"},
		{http.MethodOptions, "/"},
	} {
		rec := app.do(tc.method, tc.target, "", app.token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.method)
		assert.Equal(t, "Unsupported method", decode(t, rec).Error, tc.method)
	}
}

func TestListPage(t *testing.T) {
	app := newTestApp(t, nil)
	app.startSession()

	rec := app.do(http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `id="empty-list"`)
	assert.Contains(t, rec.Body.String(), `<option value="5">5</option>`)
	assert.Contains(t, rec.Body.String(), `<option value="120">120</option>`)
	assert.NotContains(t, rec.Body.String(), `<option value="121">`)

	app.create(`{"email":"x@y.com","first_name":"<script>alert(1)</script>","last_name":"Z","age":7}`)

	rec = app.do(http.MethodGet, "/", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.NotContains(t, body, `id="empty-list"`)
	assert.Contains(t, body, `<tr data-id="1" data-mode="view">`)
	assert.Contains(t, body, `<td>x@y.com</td>`)
	assert.Contains(t, body, `<td>05.03.2024 09:07</td>`)
	assert.Contains(t, body, "&lt;script&gt;")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, `data-transitions="{`)
	assert.Contains(t, body, app.token)
}

func TestStaticAssets(t *testing.T) {
	app := newTestApp(t, nil)

	rec := app.do(http.MethodGet, "/static/js/rows.js", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "data-transitions")

	rec = app.do(http.MethodGet, "/static/css/styles.css", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// brokenStore fails every operation the way a lost database connection would.
type brokenStore struct {
	exists bool
}

var errConnLost = &storage.StoreError{Op: "query", Err: errors.New("connection lost")}

func (b brokenStore) CreateUser(context.Context, types.UserInput) (int64, error) {
	return 0, errConnLost
}
func (b brokenStore) UpdateUser(context.Context, int64, types.UserInput) error { return errConnLost }
func (b brokenStore) DeleteUser(context.Context, int64) error                  { return errConnLost }
func (b brokenStore) ListUsers(context.Context) ([]types.User, error)          { return nil, errConnLost }
func (b brokenStore) GetUser(context.Context, int64) (types.User, error) {
	return types.User{}, errConnLost
}
func (b brokenStore) UserExists(context.Context, int64) (bool, error) {
	if b.exists {
		return true, nil
	}
	return false, errConnLost
}
func (b brokenStore) Close() error { return nil }

func TestStoreFailures(t *testing.T) {
	app := newTestApp(t, brokenStore{})

	// the list page fails before a token can be read from it
	rec := app.do(http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "failed to query: connection lost", env.Error)

	rec = app.do(http.MethodGet, "/?user_id=1", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	withRows := newTestApp(t, brokenStore{exists: true})
	rec = withRows.do(http.MethodGet, "/?user_id=1", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to query: connection lost", decode(t, rec).Error)
}

// failingWrites reads through to a real store and fails every write.
type failingWrites struct {
	storage.Storage
}

func (f failingWrites) CreateUser(context.Context, types.UserInput) (int64, error) {
	return 0, errConnLost
}
func (f failingWrites) UpdateUser(context.Context, int64, types.UserInput) error { return errConnLost }
func (f failingWrites) DeleteUser(context.Context, int64) error                  { return errConnLost }

func TestStoreFailures_Writes(t *testing.T) {
	clock := clockwork.NewFakeClock()
	base, err := sqlite.New(testConfig(), clock)
	require.NoError(t, err)
	t.Cleanup(func() { base.Close() })

	_, err = base.CreateUser(context.Background(), types.UserInput{
		Email: "a@b.com", FirstName: "A", LastName: "B", Age: 30,
	})
	require.NoError(t, err)

	app := newTestApp(t, failingWrites{Storage: base})
	app.startSession()

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{name: "create", method: http.MethodPost, target: "/", body: validBody},
		{name: "update", method: http.MethodPut, target: "/?user_id=1", body: validBody},
		{name: "delete", method: http.MethodDelete, target: "/?user_id=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.target, tt.body, app.token)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			env := decode(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, "failed to query: connection lost", env.Error)
		})
	}
}
