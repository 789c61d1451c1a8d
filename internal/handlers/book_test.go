package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shelfmark/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBookRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/books", "", BookUpsertRequest{Title: "Go", Author: "X", PublishedYear: 2020})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestCreateAndGetBook(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice01", "secretpw")

	resp := env.do(t, http.MethodPost, "/books", token, BookUpsertRequest{Title: "Go", Author: "X", PublishedYear: 2020})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	created := decodeBook(t, resp)
	assert.Equal(t, int64(1), created.AddedBy)
	assert.NotZero(t, created.ID)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/books/%d", created.ID), "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	fetched := decodeBook(t, resp)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, created.AddedBy, fetched.AddedBy)
	assert.Equal(t, "Go", fetched.Title)
}

func TestCreateBookValidationStatus(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice01", "secretpw")

	resp := env.do(t, http.MethodPost, "/books", token, BookUpsertRequest{Title: "", Author: "X", PublishedYear: time.Now().Year() + 1})
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	assert.Contains(t, errResp.Fields, "title")
	assert.Contains(t, errResp.Fields, "published_year")
}

func TestListBooksPublic(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice01", "secretpw")

	resp := env.do(t, http.MethodPost, "/books", token, BookUpsertRequest{Title: "Go", Author: "X", PublishedYear: 2020})
	require.Equal(t, http.StatusCreated, resp.Code)

	resp = env.do(t, http.MethodGet, "/books", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var books []types.Book
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &books))
	assert.Len(t, books, 1)
}

func TestGetBookBadID(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/books/abc", "/books/0", "/books/-5"} {
		resp := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.Code, path)
	}
}

func TestGetBookNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/books/12345", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetBookExpandOwner(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice01", "secretpw")

	resp := env.do(t, http.MethodPost, "/books", token, BookUpsertRequest{Title: "Go", Author: "X", PublishedYear: 2020})
	require.Equal(t, http.StatusCreated, resp.Code)
	created := decodeBook(t, resp)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/books/%d?expand=added_by", created.ID), "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	expanded := decodeBook(t, resp)
	require.NotNil(t, expanded.AddedByUser)
	assert.Equal(t, created.AddedBy, expanded.AddedByUser.ID)
	assert.Equal(t, "alice01", expanded.AddedByUser.Username)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/books/%d", created.ID), "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	plain := decodeBook(t, resp)
	assert.Nil(t, plain.AddedByUser)
}

func TestReplaceBook(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice01", "secretpw")

	resp := env.do(t, http.MethodPost, "/books", token, BookUpsertRequest{Title: "Go", Author: "X", PublishedYear: 2020})
	require.Equal(t, http.StatusCreated, resp.Code)
	created := decodeBook(t, resp)

	resp = env.do(t, http.MethodPut, fmt.Sprintf("/books/%d", created.ID), token, BookUpsertRequest{Title: "Go 2", Author: "Y", PublishedYear: 2021})
	require.Equal(t, http.StatusOK, resp.Code)
	updated := decodeBook(t, resp)
	assert.Equal(t, "Go 2", updated.Title)
	assert.Equal(t, "Y", updated.Author)
	assert.Equal(t, 2021, updated.PublishedYear)
	assert.Equal(t, created.AddedBy, updated.AddedBy)
}

func TestMergeBook(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice01", "secretpw")

	resp := env.do(t, http.MethodPost, "/books", token, BookUpsertRequest{Title: "Go", Author: "X", PublishedYear: 2020})
	require.Equal(t, http.StatusCreated, resp.Code)
	created := decodeBook(t, resp)

	resp = env.do(t, http.MethodPatch, fmt.Sprintf("/books/%d", created.ID), token, map[string]any{"title": "Go, Revised"})
	require.Equal(t, http.StatusOK, resp.Code)
	updated := decodeBook(t, resp)
	assert.Equal(t, "Go, Revised", updated.Title)
	assert.Equal(t, "X", updated.Author)
	assert.Equal(t, 2020, updated.PublishedYear)
}

func TestMutationsByNonOwner(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.registerAndLogin(t, "alice01", "secretpw")
	malloryToken := env.registerAndLogin(t, "mallory1", "password1")

	resp := env.do(t, http.MethodPost, "/books", aliceToken, BookUpsertRequest{Title: "Go", Author: "X", PublishedYear: 2020})
	require.Equal(t, http.StatusCreated, resp.Code)
	created := decodeBook(t, resp)
	path := fmt.Sprintf("/books/%d", created.ID)

	resp = env.do(t, http.MethodPut, path, malloryToken, BookUpsertRequest{Title: "Mine", Author: "M", PublishedYear: 2021})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, http.MethodPatch, path, malloryToken, map[string]any{"title": "Mine"})
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, http.MethodDelete, path, malloryToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	// Record is unchanged after the forbidden attempts.
	resp = env.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Go", decodeBook(t, resp).Title)
}

func TestMutationsOnMissingBook(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "mallory1", "password1")

	// Existence precedes ownership: a non-owner probing a missing id
	// must see 404, never 403.
	resp := env.do(t, http.MethodPut, "/books/9999", token, BookUpsertRequest{Title: "Go", Author: "X", PublishedYear: 2020})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.do(t, http.MethodPatch, "/books/9999", token, map[string]any{"title": "Go"})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.do(t, http.MethodDelete, "/books/9999", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestOwnershipScenario(t *testing.T) {
	env := newTestEnv(t)

	aliceToken := env.registerAndLogin(t, "alice01", "secretpw")

	resp := env.do(t, http.MethodPost, "/books", aliceToken, BookUpsertRequest{Title: "Go", Author: "X", PublishedYear: 2020})
	require.Equal(t, http.StatusCreated, resp.Code)
	created := decodeBook(t, resp)
	assert.Equal(t, int64(1), created.AddedBy)

	bobToken := env.registerAndLogin(t, "bobby22", "hunter22pw")
	path := fmt.Sprintf("/books/%d", created.ID)

	resp = env.do(t, http.MethodDelete, path, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.do(t, http.MethodDelete, path, aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var msg MessageResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &msg))
	assert.Equal(t, "book deleted", msg.Message)

	resp = env.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUploadCoverUnavailable(t *testing.T) {
	env := newTestEnv(t)
	token := env.registerAndLogin(t, "alice01", "secretpw")

	resp := env.do(t, http.MethodPost, "/books", token, BookUpsertRequest{Title: "Go", Author: "X", PublishedYear: 2020})
	require.Equal(t, http.StatusCreated, resp.Code)
	created := decodeBook(t, resp)

	// No multipart body at all is rejected before the service runs.
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/books/%d/cover", created.ID), token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
