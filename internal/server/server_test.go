package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ehr/patients/internal/config"
	"github.com/ehr/patients/internal/domain/account"
	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/boltstore"
)

type testApp struct {
	e        *echo.Echo
	store    *boltstore.Store
	patients *patient.Service
	accounts *account.Service
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                "test",
		StoreDriver:        config.StoreDriverBolt,
		RememberMeKey:      "server-test-key",
		RememberMeValidity: 40000,
		SessionTTL:         30 * time.Minute,
		LoginSuccessURL:    "/",
		BcryptCost:         bcrypt.MinCost,
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *testApp {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "patients.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := zerolog.Nop()
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	accounts := account.NewService(account.NewUserRepoBolt(store), account.NewRoleRepoBolt(store), store, hasher, logger)
	patients := patient.NewService(patient.NewRepoBolt(store), logger)

	ctx := context.Background()
	for _, role := range []string{auth.RoleUser, auth.RoleAdmin} {
		_, err := accounts.AddNewRole(ctx, role)
		require.NoError(t, err)
	}
	for _, name := range []string{"user1", "admin"} {
		_, err := accounts.AddNewUser(ctx, name, "1234", "1234", name+"@example.com")
		require.NoError(t, err)
		require.NoError(t, accounts.AddRoleToUser(ctx, name, auth.RoleUser))
	}
	require.NoError(t, accounts.AddRoleToUser(ctx, "admin", auth.RoleAdmin))

	e, err := New(Deps{
		Config:      cfg,
		Logger:      logger,
		Patients:    patients,
		Accounts:    accounts,
		Tokens:      auth.NewTokenIssuer([]byte(cfg.RememberMeKey), cfg.SessionTTL, cfg.RememberMeDuration()),
		Hasher:      hasher,
		StoreHealth: boltstore.HealthHandler(store),
	})
	require.NoError(t, err)
	return &testApp{e: e, store: store, patients: patients, accounts: accounts}
}

// browser replays the cookies the server sets, like a user agent would.
type browser struct {
	app     *testApp
	cookies map[string]*http.Cookie
}

func (a *testApp) browser() *browser {
	return &browser{app: a, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.app.e.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) get(target string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (b *browser) post(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return b.do(req)
}

func (b *browser) login(t *testing.T, username string, remember bool) {
	t.Helper()
	form := url.Values{"username": {username}, "password": {"1234"}}
	if remember {
		form.Set("remember-me", "on")
	}
	rec := b.post("/login", form)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/", rec.Header().Get(echo.HeaderLocation))
	require.Contains(t, b.cookies, auth.SessionCookie)
}

func seedPatient(t *testing.T, a *testApp, name string, score int) *patient.Patient {
	t.Helper()
	p := &patient.Patient{Name: name, Score: score}
	require.NoError(t, a.patients.Create(context.Background(), p))
	return p
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, testConfig())
	b := app.browser()

	rec := b.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = b.get("/health/db")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"bolt"`)
}

func TestStaticAssetsArePublic(t *testing.T) {
	app := newTestApp(t, testConfig())
	rec := app.browser().get("/static/css/app.css")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHome_AnonymousEndsAtLogin(t *testing.T) {
	app := newTestApp(t, testConfig())
	b := app.browser()

	rec := b.get("/")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, patient.IndexPath, rec.Header().Get(echo.HeaderLocation))

	rec = b.get(patient.IndexPath)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?next=%2Fuser%2Findex", rec.Header().Get(echo.HeaderLocation))

	rec = b.get("/login")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="username"`)
}

func TestAdminDelete_AccessMatrix(t *testing.T) {
	app := newTestApp(t, testConfig())
	p := seedPatient(t, app, "Hassan", 150)
	target := "/admin/delete?id=" + itoa(p.ID) + "&page=0&keyword="

	t.Run("anonymous goes to login", func(t *testing.T) {
		rec := app.browser().get(target)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderLocation), "/login?next="))
		_, err := app.patients.Get(context.Background(), p.ID)
		assert.NoError(t, err)
	})

	t.Run("user is not authorized", func(t *testing.T) {
		b := app.browser()
		b.login(t, "user1", false)
		rec := b.get(target)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, auth.DeniedPath, rec.Header().Get(echo.HeaderLocation))
		_, err := app.patients.Get(context.Background(), p.ID)
		assert.NoError(t, err)

		rec = b.get(auth.DeniedPath)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin removes the record", func(t *testing.T) {
		b := app.browser()
		b.login(t, "admin", false)
		rec := b.get(target)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, patient.IndexURL(0, ""), rec.Header().Get(echo.HeaderLocation))
		_, err := app.patients.Get(context.Background(), p.ID)
		assert.Error(t, err)
	})
}

func TestLogin_Failure(t *testing.T) {
	app := newTestApp(t, testConfig())
	b := app.browser()

	rec := b.post("/login", url.Values{"username": {"user1"}, "password": {"wrong"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?error", rec.Header().Get(echo.HeaderLocation))
	assert.NotContains(t, b.cookies, auth.SessionCookie)
}

func TestLogin_ReturnsToNext(t *testing.T) {
	app := newTestApp(t, testConfig())
	b := app.browser()

	rec := b.post("/login", url.Values{"username": {"user1"}, "password": {"1234"}, "next": {"/user/index?keyword=ab"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/user/index?keyword=ab", rec.Header().Get(echo.HeaderLocation))
}

func TestRememberMe_RestoresSession(t *testing.T) {
	app := newTestApp(t, testConfig())
	b := app.browser()
	b.login(t, "user1", true)
	require.Contains(t, b.cookies, auth.RememberMeCookie)

	// browser restart: session cookie gone, remember-me kept
	delete(b.cookies, auth.SessionCookie)

	rec := b.get(patient.IndexPath)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, b.cookies, auth.SessionCookie)
}

func TestLogout_EndsSession(t *testing.T) {
	app := newTestApp(t, testConfig())
	b := app.browser()
	b.login(t, "user1", true)

	rec := b.post("/logout", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?logout", rec.Header().Get(echo.HeaderLocation))
	assert.Empty(t, b.cookies)

	rec = b.get(patient.IndexPath)
	assert.Equal(t, http.StatusFound, rec.Code)
}

func TestScenario_CreateAndSearch(t *testing.T) {
	app := newTestApp(t, testConfig())
	b := app.browser()
	b.login(t, "admin", false)

	rec := b.post("/admin/save", url.Values{"name": {"mouad"}, "birthDate": {"2020-01-01"}, "score": {"45"}})
	require.Equal(t, http.StatusOK, rec.Code, "invalid form is re-rendered")
	assert.Contains(t, rec.Body.String(), "must be greater than or equal to 100")

	rec = b.post("/admin/save", url.Values{"name": {"chaima"}, "score": {"120"}, "sick": {"on"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, patient.FormPath, rec.Header().Get(echo.HeaderLocation))

	rec = b.get("/user/index?page=0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chaima")
	assert.NotContains(t, rec.Body.String(), "mouad")

	rec = b.get("/user/index?keyword=a")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chaima")
	assert.NotContains(t, rec.Body.String(), "mouad")
}

func TestEdit_UpdatesRecord(t *testing.T) {
	app := newTestApp(t, testConfig())
	p := seedPatient(t, app, "Yassine", 130)
	b := app.browser()
	b.login(t, "admin", false)

	rec := b.get("/admin/edit?id=" + itoa(p.ID) + "&page=0&keyword=Ya")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Yassine")

	rec = b.post("/admin/editPatient", url.Values{
		"id": {itoa(p.ID)}, "name": {"Yassir"}, "birthDate": {"1999-09-09"}, "score": {"140"},
		"page": {"0"}, "keyword": {"Ya"},
	})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, patient.IndexURL(0, "Ya"), rec.Header().Get(echo.HeaderLocation))

	got, err := app.patients.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Yassir", got.Name)
	assert.Equal(t, 140, got.Score)
}

func TestEdit_MissingRecordIsNotFound(t *testing.T) {
	app := newTestApp(t, testConfig())
	b := app.browser()
	b.login(t, "admin", false)

	rec := b.get("/admin/edit?id=999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCSRF_RequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.CSRFEnabled = true
	app := newTestApp(t, cfg)
	b := app.browser()

	rec := b.post("/login", url.Values{"username": {"user1"}, "password": {"1234"}})
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusForbidden}, rec.Code)
	assert.NotContains(t, b.cookies, auth.SessionCookie)

	rec = b.get("/login")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, b.cookies, CSRFField)
	token := b.cookies[CSRFField].Value
	assert.Contains(t, rec.Body.String(), `name="_csrf" value="`+token+`"`)

	rec = b.post("/login", url.Values{"username": {"user1"}, "password": {"1234"}, CSRFField: {token}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, b.cookies, auth.SessionCookie)
}

func TestLogin_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRateLimit = 1
	app := newTestApp(t, cfg)
	b := app.browser()

	form := url.Values{"username": {"user1"}, "password": {"wrong"}}
	assert.Equal(t, http.StatusFound, b.post("/login", form).Code)
	assert.Equal(t, http.StatusTooManyRequests, b.post("/login", form).Code)

	// the login page itself is not throttled
	assert.Equal(t, http.StatusOK, b.get("/login").Code)
}

func TestLogin_RateLimitIgnoresForwardedFor(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRateLimit = 1
	app := newTestApp(t, cfg)
	b := app.browser()

	form := url.Values{"username": {"user1"}, "password": {"wrong"}}
	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
		req.RemoteAddr = "203.0.113.9:40000"
		req.Header.Set(echo.HeaderXForwardedFor, "10.0.0."+strconv.Itoa(i))
		codes = append(codes, b.do(req).Code)
	}
	assert.Equal(t, http.StatusFound, codes[0])
	assert.Contains(t, codes[1:], http.StatusTooManyRequests, "codes: %v", codes)
}

func TestCSRF_AnonymousPostRedirectsToLogin(t *testing.T) {
	cfg := testConfig()
	cfg.CSRFEnabled = true
	app := newTestApp(t, cfg)
	b := app.browser()

	for _, path := range []string{"/admin/save", "/admin/editPatient"} {
		rec := b.post(path, url.Values{"name": {"ghost"}, "score": {"150"}})
		assert.Equal(t, http.StatusFound, rec.Code, path)
		assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderLocation), auth.LoginPath), path)
	}
}

func TestUnknownRouteRendersNotFound(t *testing.T) {
	app := newTestApp(t, testConfig())
	b := app.browser()
	b.login(t, "user1", false)

	rec := b.get("/user/nothing-here")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
