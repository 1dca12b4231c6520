package handler_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/campus-find/internal/auth"
	"github.com/iliyamo/campus-find/internal/config"
	"github.com/iliyamo/campus-find/internal/handler"
	"github.com/iliyamo/campus-find/internal/model"
	"github.com/iliyamo/campus-find/internal/repository"
	"github.com/iliyamo/campus-find/internal/router"
)

// fakeStore is an in-memory user directory mirroring the repository's
// contract, including sql.ErrNoRows for misses and the uniqueness
// sentinels for conflicting inserts.
type fakeStore struct {
	mu     sync.Mutex
	nextID uint64
	users  map[uint64]model.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[uint64]model.User{}}
}

func (f *fakeStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeStore) FindByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeStore) FindByStudentID(_ context.Context, studentID string, excludeID uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID != excludeID && u.StudentID != nil && *u.StudentID == studentID {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeStore) Create(_ context.Context, email, passwordHash, fullName string, studentID, phone *string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.users {
		if u.Email == email {
			return model.User{}, repository.ErrEmailExists
		}
		if studentID != nil && u.StudentID != nil && *u.StudentID == *studentID {
			return model.User{}, repository.ErrStudentIDExists
		}
	}
	f.nextID++
	now := time.Now().UTC()
	u := model.User{
		ID:           f.nextID,
		Email:        email,
		PasswordHash: passwordHash,
		FullName:     fullName,
		StudentID:    studentID,
		Phone:        phone,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) UpdateProfile(_ context.Context, id uint64, patch model.ProfilePatch) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	if patch.FullName != nil {
		u.FullName = *patch.FullName
	}
	if patch.StudentID != nil {
		if v := strings.TrimSpace(*patch.StudentID); v == "" {
			u.StudentID = nil
		} else {
			for _, other := range f.users {
				if other.ID != id && other.StudentID != nil && *other.StudentID == v {
					return model.User{}, repository.ErrStudentIDExists
				}
			}
			u.StudentID = &v
		}
	}
	if patch.Phone != nil {
		if v := strings.TrimSpace(*patch.Phone); v == "" {
			u.Phone = nil
		} else {
			u.Phone = &v
		}
	}
	u.UpdatedAt = time.Now().UTC()
	f.users[id] = u
	return u, nil
}

func (f *fakeStore) UpdatePassword(_ context.Context, id uint64, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	f.users[id] = u
	return nil
}

// setActive flips the is_active flag directly, standing in for an
// administrative deactivation that no endpoint performs.
func (f *fakeStore) setActive(id uint64, active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	u.IsActive = active
	f.users[id] = u
}

func (f *fakeStore) passwordHash(id uint64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].PasswordHash
}

func testConfig() config.Config {
	return config.Config{
		Env:          "test",
		Port:         "0",
		JWTSecret:    "test-secret",
		TokenTTLDays: 7,
		BcryptCost:   bcrypt.MinCost,
	}
}

func newTestServer(t *testing.T) (*echo.Echo, *fakeStore, config.Config) {
	t.Helper()
	cfg := testConfig()
	store := newFakeStore()
	a := handler.NewAuthHandler(cfg, store, nil)
	e := echo.New()
	router.RegisterRoutes(e, a, store, cfg, nil)
	return e, store, cfg
}

func doJSON(e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func signup(t *testing.T, e *echo.Echo, body string) (token string, user map[string]interface{}) {
	t.Helper()
	rec := doJSON(e, http.MethodPost, "/api/auth/signup", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode(t, rec)
	token, _ = m["token"].(string)
	user, _ = m["user"].(map[string]interface{})
	require.NotEmpty(t, token)
	require.NotNil(t, user)
	return token, user
}

func TestSignup_TokenResolvesToCreatedUser(t *testing.T) {
	e, _, cfg := newTestServer(t)

	token, user := signup(t, e, `{"fullName":"A B","email":"a@b.edu","password":"secret1"}`)

	uid, err := auth.ParseSessionToken(cfg.JWTSecret, token)
	require.NoError(t, err)
	assert.Equal(t, float64(uid), user["id"])

	// The hash must never appear in a response body.
	assert.NotContains(t, user, "password")
	assert.NotContains(t, user, "passwordHash")
}

func TestSignup_Validation(t *testing.T) {
	e, _, _ := newTestServer(t)

	for name, body := range map[string]string{
		"missing fullName": `{"email":"a@b.edu","password":"secret1"}`,
		"missing email":    `{"fullName":"A B","password":"secret1"}`,
		"missing password": `{"fullName":"A B","email":"a@b.edu"}`,
		"short password":   `{"fullName":"A B","email":"a@b.edu","password":"five5"}`,
	} {
		rec := doJSON(e, http.MethodPost, "/api/auth/signup", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	e, _, _ := newTestServer(t)

	signup(t, e, `{"fullName":"A B","email":"a@b.edu","password":"secret1"}`)

	// Differing other fields must not matter.
	rec := doJSON(e, http.MethodPost, "/api/auth/signup", "",
		`{"fullName":"C D","email":"A@B.edu","password":"other123","studentId":"S-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DUPLICATE_EMAIL", decode(t, rec)["code"])
}

func TestSignup_DuplicateStudentID(t *testing.T) {
	e, _, _ := newTestServer(t)

	signup(t, e, `{"fullName":"A B","email":"a@b.edu","password":"secret1","studentId":"S-1"}`)

	rec := doJSON(e, http.MethodPost, "/api/auth/signup", "",
		`{"fullName":"C D","email":"c@d.edu","password":"secret1","studentId":"S-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DUPLICATE_STUDENT_ID", decode(t, rec)["code"])
}

func TestLogin_NoAccountExistenceLeak(t *testing.T) {
	e, _, _ := newTestServer(t)

	signup(t, e, `{"fullName":"A B","email":"a@b.edu","password":"secret1"}`)

	wrongPass := doJSON(e, http.MethodPost, "/api/auth/login", "",
		`{"email":"a@b.edu","password":"wrong-pass"}`)
	noAccount := doJSON(e, http.MethodPost, "/api/auth/login", "",
		`{"email":"nobody@b.edu","password":"secret1"}`)

	assert.Equal(t, http.StatusUnauthorized, wrongPass.Code)
	assert.Equal(t, http.StatusUnauthorized, noAccount.Code)
	// Byte-identical bodies: no way to tell whether the account exists.
	assert.Equal(t, wrongPass.Body.String(), noAccount.Body.String())
}

func TestLogin_Success(t *testing.T) {
	e, _, cfg := newTestServer(t)

	_, user := signup(t, e, `{"fullName":"A B","email":"a@b.edu","password":"secret1"}`)

	rec := doJSON(e, http.MethodPost, "/api/auth/login", "",
		`{"email":"a@b.edu","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	uid, err := auth.ParseSessionToken(cfg.JWTSecret, m["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, user["id"], float64(uid))
}

func TestLogin_DeactivatedAccount(t *testing.T) {
	e, store, _ := newTestServer(t)

	_, user := signup(t, e, `{"fullName":"A B","email":"a@b.edu","password":"secret1"}`)
	store.setActive(uint64(user["id"].(float64)), false)

	rec := doJSON(e, http.MethodPost, "/api/auth/login", "",
		`{"email":"a@b.edu","password":"secret1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "ACCOUNT_DEACTIVATED", decode(t, rec)["code"])
}

func TestMe_RequiresToken(t *testing.T) {
	e, _, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/api/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_REQUIRED", decode(t, rec)["code"])
}

func TestMe_ExpiredToken(t *testing.T) {
	e, _, cfg := newTestServer(t)

	_, user := signup(t, e, `{"fullName":"A B","email":"a@b.edu","password":"secret1"}`)
	expired, _, err := auth.NewSessionToken(cfg.JWTSecret, uint64(user["id"].(float64)), -time.Hour)
	require.NoError(t, err)

	rec := doJSON(e, http.MethodGet, "/api/auth/me", expired, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "TOKEN_EXPIRED", decode(t, rec)["code"])
}

func TestMe_DeactivationInvalidatesExistingToken(t *testing.T) {
	e, store, _ := newTestServer(t)

	token, user := signup(t, e, `{"fullName":"A B","email":"a@b.edu","password":"secret1"}`)

	// Token works while the account is active...
	rec := doJSON(e, http.MethodGet, "/api/auth/me", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// ...and stops working the moment the account is deactivated,
	// without any token reissue or revocation.
	store.setActive(uint64(user["id"].(float64)), false)
	rec = doJSON(e, http.MethodGet, "/api/auth/me", token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "ACCOUNT_DEACTIVATED", decode(t, rec)["code"])
}

func TestUpdateProfile_PatchSemantics(t *testing.T) {
	e, _, _ := newTestServer(t)

	token, _ := signup(t, e,
		`{"fullName":"A B","email":"a@b.edu","password":"secret1","studentId":"S-1","phone":"123"}`)

	// Only fullName present: studentId and phone must survive.
	rec := doJSON(e, http.MethodPut, "/api/auth/profile", token, `{"fullName":"New Name"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user := decode(t, rec)["user"].(map[string]interface{})
	assert.Equal(t, "New Name", user["fullName"])
	assert.Equal(t, "S-1", user["studentId"])
	assert.Equal(t, "123", user["phone"])

	// Empty studentId clears it; phone untouched.
	rec = doJSON(e, http.MethodPut, "/api/auth/profile", token, `{"studentId":""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	user = decode(t, rec)["user"].(map[string]interface{})
	assert.Nil(t, user["studentId"])
	assert.Equal(t, "123", user["phone"])
}

func TestUpdateProfile_DuplicateStudentID(t *testing.T) {
	e, _, _ := newTestServer(t)

	signup(t, e, `{"fullName":"A B","email":"a@b.edu","password":"secret1","studentId":"S-1"}`)
	token, _ := signup(t, e, `{"fullName":"C D","email":"c@d.edu","password":"secret1"}`)

	rec := doJSON(e, http.MethodPut, "/api/auth/profile", token, `{"studentId":"S-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DUPLICATE_STUDENT_ID", decode(t, rec)["code"])
}

func TestUpdateProfile_KeepOwnStudentID(t *testing.T) {
	e, _, _ := newTestServer(t)

	token, _ := signup(t, e, `{"fullName":"A B","email":"a@b.edu","password":"secret1","studentId":"S-1"}`)

	// Re-sending one's own student ID is not a conflict.
	rec := doJSON(e, http.MethodPut, "/api/auth/profile", token, `{"studentId":"S-1"}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestChangePassword(t *testing.T) {
	e, store, _ := newTestServer(t)

	token, user := signup(t, e, `{"fullName":"A B","email":"a@b.edu","password":"secret1"}`)
	uid := uint64(user["id"].(float64))
	originalHash := store.passwordHash(uid)

	// Wrong current password: rejected, hash untouched.
	rec := doJSON(e, http.MethodPut, "/api/auth/change-password", token,
		`{"currentPassword":"wrong","newPassword":"secret2"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, originalHash, store.passwordHash(uid))

	// Too-short new password: rejected, hash untouched.
	rec = doJSON(e, http.MethodPut, "/api/auth/change-password", token,
		`{"currentPassword":"secret1","newPassword":"five5"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, originalHash, store.passwordHash(uid))

	// Correct current password: hash replaced, new password logs in.
	rec = doJSON(e, http.MethodPut, "/api/auth/change-password", token,
		`{"currentPassword":"secret1","newPassword":"secret2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEqual(t, originalHash, store.passwordHash(uid))

	rec = doJSON(e, http.MethodPost, "/api/auth/login", "",
		`{"email":"a@b.edu","password":"secret2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The pre-change token was never revoked and still works.
	rec = doJSON(e, http.MethodGet, "/api/auth/me", token, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionProbe(t *testing.T) {
	e, _, _ := newTestServer(t)

	token, user := signup(t, e, `{"fullName":"A B","email":"a@b.edu","password":"secret1"}`)

	// Anonymous: 200 with authenticated=false, never an auth error.
	rec := doJSON(e, http.MethodGet, "/api/session", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["authenticated"])

	// Garbage token behaves the same as no token.
	rec = doJSON(e, http.MethodGet, "/api/session", "garbage", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["authenticated"])

	// Valid token resolves to the signed-up user.
	rec = doJSON(e, http.MethodGet, "/api/session", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, true, m["authenticated"])
	assert.Equal(t, user["id"], m["user"].(map[string]interface{})["id"])
}

func TestHealth(t *testing.T) {
	e, _, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/api/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", decode(t, rec)["status"])
}
