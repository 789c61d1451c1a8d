package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shelfmark/apiserver/internal/services"
	"github.com/sirupsen/logrus"
)

const (
	maxCoverMemory = 8 << 20
	maxCoverBytes  = 8 << 20
	formFieldCover = "cover"
	defaultCoverCT = "application/octet-stream"
)

var (
	errInvalidMultipart = errors.New("invalid multipart form")
	errCoverRequired    = errors.New("cover file is required")
	errTooManyCovers    = errors.New("only one cover file is allowed")
	errCoverUnreadable  = errors.New("failed to read cover file")
	errCoverTooLarge    = errors.New("cover file too large")
)

// BookHandler provides HTTP handlers for the book catalog.
type BookHandler struct {
	bookService *services.BookService
	log         *logrus.Logger
}

// NewBookHandler constructs a handler with the provided service.
func NewBookHandler(bookService *services.BookService, log *logrus.Logger) *BookHandler {
	return &BookHandler{
		bookService: bookService,
		log:         log,
	}
}

// BookRouter registers book routes on the given router. Reads are public;
// mutations require the auth middleware.
func BookRouter(
	r chi.Router,
	bookService *services.BookService,
	authMiddleware func(http.Handler) http.Handler,
	log *logrus.Logger,
) {
	handler := NewBookHandler(bookService, log)

	r.Get("/", handler.ListBooks)
	r.With(authMiddleware).Post("/", handler.CreateBook)
	r.Route("/{bookID}", func(r chi.Router) {
		r.Get("/", handler.GetBook)
		r.With(authMiddleware).Put("/", handler.ReplaceBook)
		r.With(authMiddleware).Patch("/", handler.MergeBook)
		r.With(authMiddleware).Delete("/", handler.DeleteBook)
		r.Get("/cover", handler.GetCover)
		r.With(authMiddleware).Post("/cover", handler.UploadCover)
	})
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.bookService.List(r.Context(), expandOwnerRequested(r))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.bookService.Get(r.Context(), id, expandOwnerRequested(r))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req BookUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	book, err := h.bookService.Create(r.Context(), identity.ID, services.BookFields{
		Title:         req.Title,
		Author:        req.Author,
		PublishedYear: req.PublishedYear,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

func (h *BookHandler) ReplaceBook(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req BookUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	book, err := h.bookService.Replace(r.Context(), identity.ID, id, services.BookFields{
		Title:         req.Title,
		Author:        req.Author,
		PublishedYear: req.PublishedYear,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) MergeBook(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req BookPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	book, err := h.bookService.Merge(r.Context(), identity.ID, id, services.BookPatch{
		Title:         req.Title,
		Author:        req.Author,
		PublishedYear: req.PublishedYear,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.bookService.Delete(r.Context(), identity.ID, id); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "book deleted"})
}

func (h *BookHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, contentType, err := parseCoverFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.bookService.UploadCover(r.Context(), identity.ID, id, data, contentType); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "cover uploaded"})
}

func (h *BookHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reader, err := h.bookService.GetCover(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	defer reader.Close()

	if _, err := io.Copy(w, reader); err != nil {
		logRequestError(h.log, r, err)
	}
}

type BookUpsertRequest struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	PublishedYear int    `json:"published_year"`
}

type BookPatchRequest struct {
	Title         *string `json:"title"`
	Author        *string `json:"author"`
	PublishedYear *int    `json:"published_year"`
}

func parseCoverFile(r *http.Request) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxCoverMemory); err != nil {
		return nil, "", errInvalidMultipart
	}
	if r.MultipartForm == nil {
		return nil, "", errCoverRequired
	}

	files := r.MultipartForm.File[formFieldCover]
	if len(files) == 0 {
		return nil, "", errCoverRequired
	}
	if len(files) > 1 {
		return nil, "", errTooManyCovers
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return nil, "", errCoverUnreadable
	}

	data, err := readFileLimited(file, maxCoverBytes)
	_ = file.Close()
	if err != nil {
		return nil, "", err
	}

	contentType := strings.TrimSpace(fileHeader.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = defaultCoverCT
	}
	return data, contentType, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errCoverUnreadable
	}
	if int64(len(data)) > limit {
		return nil, errCoverTooLarge
	}
	return data, nil
}
