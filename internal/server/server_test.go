package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
	"testing"

	"yamdb/internal/domain/models"
	"yamdb/internal/token"
	storage "yamdb/repository/inmemory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "shouldbeinVaultsecret"

type MockSender struct {
	mock.Mock
	mu sync.Mutex
}

func (m *MockSender) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

var confirmationCode = regexp.MustCompile(`[A-Za-z0-9]{32}`)

// lastCode returns the code from the most recent mail sent to address.
func (m *MockSender) lastCode(address string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	code := ""
	for _, call := range m.Calls {
		if call.Arguments.String(1) == address {
			code = confirmationCode.FindString(call.Arguments.String(3))
		}
	}
	return code
}

type testEnv struct {
	api    *API
	store  *storage.Storage
	sender *MockSender
	tokens *token.Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewStorage()
	sender := &MockSender{}
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	tokens, err := token.NewIssuer(testSecret, 0)
	require.NoError(t, err)

	api, err := NewAPI(store, DefaultConfig(), Deps{Mailer: sender, Tokens: tokens})
	require.NoError(t, err)
	return &testEnv{api: api, store: store, sender: sender, tokens: tokens}
}

// user stores an account directly and returns it with a valid token.
func (e *testEnv) user(t *testing.T, username string, role models.Role) (*models.User, string) {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", Role: role, Confirmed: true}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	tok, err := e.tokens.Issue(u.ID)
	require.NoError(t, err)
	return u, tok
}

func (e *testEnv) do(t *testing.T, method, path string, body any, tok string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.api.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

func TestNewAPI(t *testing.T) {
	api, err := NewAPI(nil, nil, Deps{})
	assert.Error(t, err)
	assert.Nil(t, api)

	api, err = NewAPI(storage.NewStorage(), nil, Deps{})
	require.NoError(t, err)
	assert.NotNil(t, api.Handler())
}

func TestRoutingFallbacks(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "unknown path", method: http.MethodGet, path: "/api/v1/nope", want: http.StatusNotFound},
		{name: "unknown method", method: http.MethodPut, path: "/api/v1/categories", want: http.StatusMethodNotAllowed},
		{name: "healthz", method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, nil, "")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestSignupAndTokenFlow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/signup",
		map[string]string{"username": "bob", "email": "bob@example.com"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.SignupResponse{Username: "bob", Email: "bob@example.com"}, decode[models.SignupResponse](t, w))
	assert.NotContains(t, w.Body.String(), "confirmation_code")

	code := env.sender.lastCode("bob@example.com")
	require.Len(t, code, 32)

	w = env.do(t, http.MethodPost, "/api/v1/auth/token",
		map[string]string{"username": "bob", "confirmation_code": "wrong"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Fields, "confirmation_code")

	w = env.do(t, http.MethodPost, "/api/v1/auth/token",
		map[string]string{"username": "bob", "confirmation_code": code}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[models.TokenResponse](t, w)
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, resp.Token, resp.AccessToken)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, resp.Token, cookies[0].Value)

	w = env.do(t, http.MethodPost, "/api/v1/auth/token",
		map[string]string{"username": "bob", "confirmation_code": code}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/users/me", nil, resp.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", decode[models.UserResponse](t, w).Username)
}

func TestProfileChangeVoidsConfirmationCode(t *testing.T) {
	tests := []struct {
		name  string
		patch func(t *testing.T, env *testEnv) *httptest.ResponseRecorder
	}{
		{
			name: "admin edits the account",
			patch: func(t *testing.T, env *testEnv) *httptest.ResponseRecorder {
				_, adminTok := env.user(t, "admin", models.RoleAdmin)
				return env.do(t, http.MethodPatch, "/api/v1/users/bob", map[string]string{"bio": "x"}, adminTok)
			},
		},
		{
			name: "user edits own profile",
			patch: func(t *testing.T, env *testEnv) *httptest.ResponseRecorder {
				bob, err := env.store.GetUserByUsername(context.Background(), "bob")
				require.NoError(t, err)
				bobTok, err := env.tokens.Issue(bob.ID)
				require.NoError(t, err)
				return env.do(t, http.MethodPatch, "/api/v1/users/me", map[string]string{"bio": "x"}, bobTok)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(t, http.MethodPost, "/api/v1/auth/signup",
				map[string]string{"username": "bob", "email": "bob@example.com"}, "")
			require.Equal(t, http.StatusOK, w.Code)
			code := env.sender.lastCode("bob@example.com")
			require.Len(t, code, 32)

			w = tt.patch(t, env)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			w = env.do(t, http.MethodPost, "/api/v1/auth/token",
				map[string]string{"username": "bob", "confirmation_code": code}, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode[errorBody](t, w).Fields, "confirmation_code")
		})
	}
}

func TestSignup(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, env *testEnv)
		body  any
		want  struct {
			statusCode int
			field      string
		}
	}{
		{
			name:  "reserved username",
			setup: func(t *testing.T, env *testEnv) {},
			body:  map[string]string{"username": "Me", "email": "me@example.com"},
			want: struct {
				statusCode int
				field      string
			}{statusCode: http.StatusBadRequest, field: "username"},
		},
		{
			name:  "invalid characters",
			setup: func(t *testing.T, env *testEnv) {},
			body:  map[string]string{"username": "bad name!", "email": "x@example.com"},
			want: struct {
				statusCode int
				field      string
			}{statusCode: http.StatusBadRequest, field: "username"},
		},
		{
			name: "repeat with same pair",
			setup: func(t *testing.T, env *testEnv) {
				env.user(t, "bob", models.RoleUser)
			},
			body: map[string]string{"username": "bob", "email": "bob@example.com"},
			want: struct {
				statusCode int
				field      string
			}{statusCode: http.StatusOK},
		},
		{
			name: "username bound to another email",
			setup: func(t *testing.T, env *testEnv) {
				env.user(t, "bob", models.RoleUser)
			},
			body: map[string]string{"username": "bob", "email": "other@example.com"},
			want: struct {
				statusCode int
				field      string
			}{statusCode: http.StatusBadRequest, field: "username"},
		},
		{
			name:  "malformed json",
			setup: func(t *testing.T, env *testEnv) {},
			body:  `{"username":`,
			want: struct {
				statusCode int
				field      string
			}{statusCode: http.StatusBadRequest},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(t, env)

			w := env.do(t, http.MethodPost, "/api/v1/auth/signup", tt.body, "")

			assert.Equal(t, tt.want.statusCode, w.Code, w.Body.String())
			if tt.want.field != "" {
				assert.Contains(t, decode[errorBody](t, w).Fields, tt.want.field)
			}
		})
	}

	t.Run("repeat does not duplicate user", func(t *testing.T) {
		env := newTestEnv(t)
		for i := 0; i < 2; i++ {
			w := env.do(t, http.MethodPost, "/api/v1/auth/signup",
				map[string]string{"username": "bob", "email": "bob@example.com"}, "")
			require.Equal(t, http.StatusOK, w.Code)
		}
		_, count, err := env.store.ListUsers(context.Background(), "", models.PageRequest{Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		env.sender.AssertNumberOfCalls(t, "Send", 2)
	})
}

func TestObtainTokenUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/token",
		map[string]string{"username": "ghost", "confirmation_code": "x"}, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)
	user, tok := env.user(t, "alice", models.RoleUser)
	otherIssuer, err := token.NewIssuer("another-secret", 0)
	require.NoError(t, err)
	forged, err := otherIssuer.Issue(user.ID)
	require.NoError(t, err)

	gone, goneTok := env.user(t, "gone", models.RoleUser)
	require.NoError(t, env.store.DeleteUser(context.Background(), gone.ID))

	tests := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{name: "no token", want: http.StatusUnauthorized},
		{name: "bearer token", header: "Bearer " + tok, want: http.StatusOK},
		{name: "cookie token", cookie: tok, want: http.StatusOK},
		{name: "foreign signature", header: "Bearer " + forged, want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc.def.ghi", want: http.StatusUnauthorized},
		{name: "deleted user", header: "Bearer " + goneTok, want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: tokenCookie, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			env.api.Handler().ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	t.Run("invalid header token on public endpoint", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/categories", nil, "garbage")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("stale cookie is cleared", func(t *testing.T) {
		tests := []struct {
			name string
			path string
			want int
		}{
			{name: "public read continues anonymously", path: "/api/v1/categories", want: http.StatusOK},
			{name: "private read needs login", path: "/api/v1/users/me", want: http.StatusUnauthorized},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodGet, tt.path, nil)
				req.AddCookie(&http.Cookie{Name: tokenCookie, Value: goneTok})
				w := httptest.NewRecorder()
				env.api.Handler().ServeHTTP(w, req)

				assert.Equal(t, tt.want, w.Code)
				cookies := w.Result().Cookies()
				require.Len(t, cookies, 1)
				assert.Equal(t, tokenCookie, cookies[0].Name)
				assert.Empty(t, cookies[0].Value)
				assert.Negative(t, cookies[0].MaxAge)
			})
		}
	})
}

func (e *testEnv) title(t *testing.T, name string) *models.Title {
	t.Helper()
	ctx := context.Background()
	category := &models.Category{Name: "Фильм", Slug: "movie-" + name}
	require.NoError(t, e.store.CreateCategory(ctx, category))
	genre := &models.Genre{Name: "Драма", Slug: "drama-" + name}
	require.NoError(t, e.store.CreateGenre(ctx, genre))
	title := &models.Title{Name: name, Year: 1994, Category: category, Genres: []models.Genre{*genre}}
	require.NoError(t, e.store.CreateTitle(ctx, title))
	return title
}

func TestCatalogPermissions(t *testing.T) {
	env := newTestEnv(t)
	_, userTok := env.user(t, "user", models.RoleUser)
	_, moderTok := env.user(t, "moder", models.RoleModerator)
	_, adminTok := env.user(t, "admin", models.RoleAdmin)

	tests := []struct {
		name  string
		token string
		slug  string
		want  int
	}{
		{name: "anonymous", slug: "a", want: http.StatusUnauthorized},
		{name: "user", token: userTok, slug: "b", want: http.StatusForbidden},
		{name: "moderator", token: moderTok, slug: "c", want: http.StatusForbidden},
		{name: "admin", token: adminTok, slug: "d", want: http.StatusCreated},
		{name: "admin duplicate slug", token: adminTok, slug: "d", want: http.StatusBadRequest},
		{name: "admin bad slug", token: adminTok, slug: "bad slug", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/categories",
				map[string]string{"name": "Книги", "slug": tt.slug}, tt.token)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	t.Run("anyone can read", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/categories/d", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, models.CategoryResponse{Name: "Книги", Slug: "d"}, decode[models.CategoryResponse](t, w))
	})

	t.Run("admin deletes genre", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/genres", map[string]string{"name": "Рок", "slug": "rock"}, adminTok)
		require.Equal(t, http.StatusCreated, w.Code)
		w = env.do(t, http.MethodDelete, "/api/v1/genres/rock", nil, adminTok)
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = env.do(t, http.MethodGet, "/api/v1/genres/rock", nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestTitles(t *testing.T) {
	env := newTestEnv(t)
	_, adminTok := env.user(t, "admin", models.RoleAdmin)
	ctx := context.Background()
	require.NoError(t, env.store.CreateCategory(ctx, &models.Category{Name: "Фильм", Slug: "movie"}))
	require.NoError(t, env.store.CreateGenre(ctx, &models.Genre{Name: "Драма", Slug: "drama"}))

	type want struct {
		statusCode int
		fields     []string
	}
	tests := []struct {
		name string
		body map[string]any
		want want
	}{
		{
			name: "created",
			body: map[string]any{"name": "Фильм", "year": 1994, "genre": []string{"drama"}, "category": "movie"},
			want: want{statusCode: http.StatusCreated},
		},
		{
			name: "unknown slugs",
			body: map[string]any{"name": "Фильм", "year": 1994, "genre": []string{"nope"}, "category": "nope"},
			want: want{statusCode: http.StatusBadRequest, fields: []string{"genre", "category"}},
		},
		{
			name: "empty genre list",
			body: map[string]any{"name": "Фильм", "year": 1994, "genre": []string{}},
			want: want{statusCode: http.StatusBadRequest, fields: []string{"genre"}},
		},
		{
			name: "future year",
			body: map[string]any{"name": "Фильм", "year": 3000, "genre": []string{"drama"}},
			want: want{statusCode: http.StatusBadRequest, fields: []string{"year"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/titles", tt.body, adminTok)
			require.Equal(t, tt.want.statusCode, w.Code, w.Body.String())
			if len(tt.want.fields) > 0 {
				fields := decode[errorBody](t, w).Fields
				for _, f := range tt.want.fields {
					assert.Contains(t, fields, f)
				}
			}
		})
	}

	t.Run("partial update keeps other fields", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/titles",
			map[string]any{"name": "Старое", "year": 2001, "genre": []string{"drama"}, "category": "movie"}, adminTok)
		require.Equal(t, http.StatusCreated, w.Code)
		created := decode[models.TitleResponse](t, w)
		assert.Nil(t, created.Rating)

		path := "/api/v1/titles/" + itoa(created.ID)
		w = env.do(t, http.MethodPatch, path, map[string]any{"name": "Новое"}, adminTok)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		updated := decode[models.TitleResponse](t, w)
		assert.Equal(t, "Новое", updated.Name)
		assert.Equal(t, 2001, updated.Year)
		require.NotNil(t, updated.Category)
		assert.Equal(t, "movie", updated.Category.Slug)
		assert.Len(t, updated.Genre, 1)

		w = env.do(t, http.MethodPatch, path, map[string]any{"genre": []string{}}, adminTok)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = env.do(t, http.MethodPatch, path, map[string]any{"description": "Без категории"}, adminTok)
		require.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, decode[models.TitleResponse](t, w).Category)

		w = env.do(t, http.MethodPatch, path, `{"category": null}`, adminTok)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		cleared := decode[models.TitleResponse](t, w)
		assert.Nil(t, cleared.Category)
		assert.Equal(t, "Без категории", cleared.Description)
	})

	t.Run("filters", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/titles?genre=drama&year=2001", nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[models.Page[models.TitleResponse]](t, w)
		require.Equal(t, 1, page.Count)
		assert.Equal(t, 2001, page.Results[0].Year)

		w = env.do(t, http.MethodGet, "/api/v1/titles?year=abc", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		for _, path := range []string{"/api/v1/titles/999", "/api/v1/titles/abc", "/api/v1/titles/-1"} {
			w := env.do(t, http.MethodGet, path, nil, "")
			assert.Equal(t, http.StatusNotFound, w.Code, path)
		}
	})
}

func TestReviewsAndRating(t *testing.T) {
	env := newTestEnv(t)
	title := env.title(t, "matrix")
	_, aliceTok := env.user(t, "alice", models.RoleUser)
	_, bobTok := env.user(t, "bob", models.RoleUser)
	_, moderTok := env.user(t, "moder", models.RoleModerator)

	titlePath := "/api/v1/titles/" + itoa(title.ID)
	reviewsPath := titlePath + "/reviews"

	rating := func() *float64 {
		w := env.do(t, http.MethodGet, titlePath, nil, "")
		require.Equal(t, http.StatusOK, w.Code)
		return decode[models.TitleResponse](t, w).Rating
	}
	assert.Nil(t, rating())

	w := env.do(t, http.MethodPost, reviewsPath, map[string]any{"text": "Отлично", "score": 8}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, reviewsPath, map[string]any{"text": "Отлично", "score": 8}, aliceTok)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	alice := decode[models.ReviewResponse](t, w)
	assert.Equal(t, "alice", alice.Author)
	require.NotNil(t, rating())
	assert.InDelta(t, 8.0, *rating(), 1e-9)

	w = env.do(t, http.MethodPost, reviewsPath, map[string]any{"text": "Ещё раз", "score": 1}, aliceTok)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Fields, "non_field_errors")

	w = env.do(t, http.MethodPost, reviewsPath, map[string]any{"text": "Так себе", "score": 11}, bobTok)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Fields, "score")

	w = env.do(t, http.MethodPost, reviewsPath, map[string]any{"text": "Так себе", "score": 4}, bobTok)
	require.Equal(t, http.StatusCreated, w.Code)
	bob := decode[models.ReviewResponse](t, w)
	assert.InDelta(t, 6.0, *rating(), 1e-9)

	alicePath := reviewsPath + "/" + itoa(alice.ID)
	bobPath := reviewsPath + "/" + itoa(bob.ID)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		token  string
		want   int
	}{
		{name: "stranger cannot edit", method: http.MethodPatch, path: alicePath, body: map[string]any{"score": 1}, token: bobTok, want: http.StatusForbidden},
		{name: "author edits", method: http.MethodPatch, path: alicePath, body: map[string]any{"score": 10}, token: aliceTok, want: http.StatusOK},
		{name: "stranger cannot delete", method: http.MethodDelete, path: alicePath, token: bobTok, want: http.StatusForbidden},
		{name: "moderator deletes", method: http.MethodDelete, path: bobPath, token: moderTok, want: http.StatusNoContent},
		{name: "author deletes", method: http.MethodDelete, path: alicePath, token: aliceTok, want: http.StatusNoContent},
		{name: "already gone", method: http.MethodGet, path: alicePath, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body, tt.token)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	assert.Nil(t, rating())
}

func TestComments(t *testing.T) {
	env := newTestEnv(t)
	title := env.title(t, "matrix")
	other := env.title(t, "alien")
	_, aliceTok := env.user(t, "alice", models.RoleUser)
	_, bobTok := env.user(t, "bob", models.RoleUser)

	reviewsPath := "/api/v1/titles/" + itoa(title.ID) + "/reviews"
	w := env.do(t, http.MethodPost, reviewsPath, map[string]any{"text": "Отлично", "score": 9}, aliceTok)
	require.Equal(t, http.StatusCreated, w.Code)
	review := decode[models.ReviewResponse](t, w)

	commentsPath := reviewsPath + "/" + itoa(review.ID) + "/comments"
	w = env.do(t, http.MethodPost, commentsPath, map[string]any{"text": "Согласен"}, bobTok)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	comment := decode[models.CommentResponse](t, w)
	assert.Equal(t, "bob", comment.Author)

	commentPath := commentsPath + "/" + itoa(comment.ID)
	wrongTitle := "/api/v1/titles/" + itoa(other.ID) + "/reviews/" + itoa(review.ID) + "/comments/" + itoa(comment.ID)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		token  string
		want   int
	}{
		{name: "list", method: http.MethodGet, path: commentsPath, want: http.StatusOK},
		{name: "review under another title", method: http.MethodGet, path: wrongTitle, want: http.StatusNotFound},
		{name: "empty text", method: http.MethodPost, path: commentsPath, body: map[string]any{"text": ""}, token: aliceTok, want: http.StatusBadRequest},
		{name: "stranger cannot edit", method: http.MethodPatch, path: commentPath, body: map[string]any{"text": "нет"}, token: aliceTok, want: http.StatusForbidden},
		{name: "author edits", method: http.MethodPatch, path: commentPath, body: map[string]any{"text": "Да"}, token: bobTok, want: http.StatusOK},
		{name: "author deletes", method: http.MethodDelete, path: commentPath, token: bobTok, want: http.StatusNoContent},
		{name: "gone", method: http.MethodGet, path: commentPath, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body, tt.token)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestUsersEndpoints(t *testing.T) {
	env := newTestEnv(t)
	admin, adminTok := env.user(t, "admin", models.RoleAdmin)
	_, userTok := env.user(t, "alice", models.RoleUser)

	t.Run("self update ignores role", func(t *testing.T) {
		w := env.do(t, http.MethodPatch, "/api/v1/users/me",
			map[string]string{"role": "admin", "bio": "Привет"}, userTok)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := decode[models.UserResponse](t, w)
		assert.Equal(t, models.RoleUser, got.Role)
		assert.Equal(t, "Привет", got.Bio)
	})

	t.Run("self delete forbidden", func(t *testing.T) {
		w := env.do(t, http.MethodDelete, "/api/v1/users/me", nil, userTok)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		token  string
		want   int
	}{
		{name: "user cannot list", method: http.MethodGet, path: "/api/v1/users", token: userTok, want: http.StatusForbidden},
		{name: "admin lists", method: http.MethodGet, path: "/api/v1/users?search=ali", token: adminTok, want: http.StatusOK},
		{name: "admin creates", method: http.MethodPost, path: "/api/v1/users", body: map[string]string{"username": "carol", "email": "carol@example.com", "role": "moderator"}, token: adminTok, want: http.StatusCreated},
		{name: "duplicate email", method: http.MethodPost, path: "/api/v1/users", body: map[string]string{"username": "dave", "email": "carol@example.com"}, token: adminTok, want: http.StatusBadRequest},
		{name: "bad role", method: http.MethodPost, path: "/api/v1/users", body: map[string]string{"username": "erin", "email": "erin@example.com", "role": "root"}, token: adminTok, want: http.StatusBadRequest},
		{name: "admin reads", method: http.MethodGet, path: "/api/v1/users/carol", token: adminTok, want: http.StatusOK},
		{name: "admin promotes", method: http.MethodPatch, path: "/api/v1/users/alice", body: map[string]string{"role": "moderator"}, token: adminTok, want: http.StatusOK},
		{name: "unknown user", method: http.MethodGet, path: "/api/v1/users/ghost", token: adminTok, want: http.StatusNotFound},
		{name: "admin cannot delete self", method: http.MethodDelete, path: "/api/v1/users/" + admin.Username, token: adminTok, want: http.StatusForbidden},
		{name: "admin deletes", method: http.MethodDelete, path: "/api/v1/users/carol", token: adminTok, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body, tt.token)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestPagination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, slug := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, env.store.CreateGenre(ctx, &models.Genre{Name: "Жанр " + slug, Slug: slug}))
	}

	type want struct {
		statusCode int
		count      int
		results    int
		next       string
		previous   string
	}
	tests := []struct {
		name  string
		query string
		want  want
	}{
		{
			name:  "first page",
			query: "?page_size=2",
			want:  want{statusCode: http.StatusOK, count: 5, results: 2, next: "/api/v1/genres?page=2&page_size=2"},
		},
		{
			name:  "middle page",
			query: "?page=2&page_size=2",
			want: want{statusCode: http.StatusOK, count: 5, results: 2,
				next: "/api/v1/genres?page=3&page_size=2", previous: "/api/v1/genres?page_size=2"},
		},
		{
			name:  "last page",
			query: "?page=3&page_size=2",
			want:  want{statusCode: http.StatusOK, count: 5, results: 1, previous: "/api/v1/genres?page=2&page_size=2"},
		},
		{
			name:  "past the end",
			query: "?page=4&page_size=2",
			want:  want{statusCode: http.StatusNotFound},
		},
		{
			name:  "invalid page",
			query: "?page=zero",
			want:  want{statusCode: http.StatusBadRequest},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/genres"+tt.query, nil, "")
			require.Equal(t, tt.want.statusCode, w.Code, w.Body.String())
			if tt.want.statusCode != http.StatusOK {
				return
			}
			page := decode[models.Page[models.GenreResponse]](t, w)
			assert.Equal(t, tt.want.count, page.Count)
			assert.Len(t, page.Results, tt.want.results)
			assert.Equal(t, tt.want.next, deref(page.Next))
			assert.Equal(t, tt.want.previous, deref(page.Previous))
		})
	}
}

func TestEmptyListIsNotAnError(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/titles", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	page := decode[models.Page[models.TitleResponse]](t, w)
	assert.Equal(t, 0, page.Count)
	assert.NotNil(t, page.Results)
	assert.Nil(t, page.Next)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
