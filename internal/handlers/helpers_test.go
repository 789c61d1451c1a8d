package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shelfmark/apiserver/config"
	"github.com/shelfmark/apiserver/internal/services"
	"github.com/shelfmark/apiserver/internal/store"
	"github.com/shelfmark/apiserver/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type fakeUserRepo struct {
	users  map[string]types.User
	nextID int64
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]types.User{}, nextID: 1}
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int64) (types.User, error) {
	for _, user := range f.users {
		if user.ID == id {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	if user, ok := f.users[username]; ok {
		return user, nil
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, ok := f.users[user.Username]; ok {
		return types.User{}, store.ErrDuplicate
	}
	user.ID = f.nextID
	f.nextID++
	f.users[user.Username] = user
	return user, nil
}

type fakeBookRepo struct {
	books  map[int64]types.Book
	owners map[int64]string
	nextID int64
}

func newFakeBookRepo() *fakeBookRepo {
	return &fakeBookRepo{books: map[int64]types.Book{}, owners: map[int64]string{}, nextID: 1}
}

func (f *fakeBookRepo) expand(book types.Book, expandOwner bool) types.Book {
	if expandOwner {
		if username, ok := f.owners[book.AddedBy]; ok {
			book.AddedByUser = &types.UserRef{ID: book.AddedBy, Username: username}
		}
	}
	return book
}

func (f *fakeBookRepo) List(ctx context.Context, expandOwner bool) ([]types.Book, error) {
	books := make([]types.Book, 0, len(f.books))
	for _, book := range f.books {
		books = append(books, f.expand(book, expandOwner))
	}
	return books, nil
}

func (f *fakeBookRepo) Get(ctx context.Context, id int64, expandOwner bool) (types.Book, error) {
	book, ok := f.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	return f.expand(book, expandOwner), nil
}

func (f *fakeBookRepo) Create(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.ID = f.nextID
	book.CreatedAt = now
	book.UpdatedAt = now
	f.nextID++
	f.books[book.ID] = book
	return book, nil
}

func (f *fakeBookRepo) Update(ctx context.Context, book types.Book) (types.Book, error) {
	if _, ok := f.books[book.ID]; !ok {
		return types.Book{}, store.ErrNotFound
	}
	book.UpdatedAt = time.Now()
	f.books[book.ID] = book
	return book, nil
}

func (f *fakeBookRepo) SetCoverKey(ctx context.Context, id int64, coverKey string) error {
	book, ok := f.books[id]
	if !ok {
		return store.ErrNotFound
	}
	book.CoverKey = coverKey
	f.books[id] = book
	return nil
}

func (f *fakeBookRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := f.books[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.books, id)
	return nil
}

type testEnv struct {
	router   *chi.Mux
	userRepo *fakeUserRepo
	bookRepo *fakeBookRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	userRepo := newFakeUserRepo()
	bookRepo := newFakeBookRepo()

	log := logrus.New()
	log.SetOutput(io.Discard)

	userService := services.NewUserService(userRepo)
	bookService := services.NewBookService(bookRepo, nil, nil, log)

	jwtCfg := config.JWTConfig{Secret: testSecret, TokenTTL: time.Hour}
	authMiddleware := RequireAuth(testSecret)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, userService, jwtCfg, log)
	})
	router.Route("/books", func(r chi.Router) {
		BookRouter(r, bookService, authMiddleware, log)
	})

	return &testEnv{
		router:   router,
		userRepo: userRepo,
		bookRepo: bookRepo,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)
	return recorder
}

// registerAndLogin creates an account and returns a bearer token for it.
func (e *testEnv) registerAndLogin(t *testing.T, username, password string) string {
	t.Helper()

	resp := e.do(t, http.MethodPost, "/auth/register", "", RegisterRequest{Username: username, Password: password})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	user, err := e.userRepo.GetByUsername(context.Background(), username)
	require.NoError(t, err)
	e.bookRepo.owners[user.ID] = username

	resp = e.do(t, http.MethodPost, "/auth/login", "", LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var tokenResp TokenResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &tokenResp))
	require.NotEmpty(t, tokenResp.Token)
	return tokenResp.Token
}

func decodeBook(t *testing.T, resp *httptest.ResponseRecorder) types.Book {
	t.Helper()
	var book types.Book
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &book))
	return book
}
