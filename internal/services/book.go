package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shelfmark/apiserver/internal/mq"
	"github.com/shelfmark/apiserver/internal/storage"
	"github.com/shelfmark/apiserver/internal/store"
	"github.com/shelfmark/apiserver/types"
	"github.com/sirupsen/logrus"
)

// ErrCoverStorageDisabled is returned when no object storage backend is
// configured and a cover operation is requested.
var ErrCoverStorageDisabled = errors.New("cover storage is not configured")

const eventsChannel = "catalog.events"

// BookRepository defines persistence operations for books.
type BookRepository interface {
	List(ctx context.Context, expandOwner bool) ([]types.Book, error)
	Get(ctx context.Context, id int64, expandOwner bool) (types.Book, error)
	Create(ctx context.Context, book types.Book) (types.Book, error)
	Update(ctx context.Context, book types.Book) (types.Book, error)
	SetCoverKey(ctx context.Context, id int64, coverKey string) error
	Delete(ctx context.Context, id int64) error
}

// BookFields is the full set of caller-supplied book attributes, used by
// Create and Replace.
type BookFields struct {
	Title         string
	Author        string
	PublishedYear int
}

// BookPatch is the partial set of attributes for Merge. Nil fields are left
// untouched.
type BookPatch struct {
	Title         *string
	Author        *string
	PublishedYear *int
}

// BookService encapsulates ownership-scoped CRUD on the catalog. Storage and
// events are optional; when nil, cover operations are rejected and event
// publishing is skipped.
type BookService struct {
	repo    BookRepository
	storage *storage.Storage
	events  *mq.MQ
	log     *logrus.Logger
}

func NewBookService(repo BookRepository, st *storage.Storage, events *mq.MQ, log *logrus.Logger) *BookService {
	if log == nil {
		log = logrus.New()
	}
	return &BookService{
		repo:    repo,
		storage: st,
		events:  events,
		log:     log,
	}
}

func (s *BookService) List(ctx context.Context, expandOwner bool) ([]types.Book, error) {
	return s.repo.List(ctx, expandOwner)
}

func (s *BookService) Get(ctx context.Context, id int64, expandOwner bool) (types.Book, error) {
	return s.repo.Get(ctx, id, expandOwner)
}

// Create validates the fields and persists a new book owned by the acting
// user.
func (s *BookService) Create(ctx context.Context, actorID int64, fields BookFields) (types.Book, error) {
	if err := validateBookFields(fields); err != nil {
		return types.Book{}, err
	}

	book, err := s.repo.Create(ctx, types.Book{
		Title:         strings.TrimSpace(fields.Title),
		Author:        strings.TrimSpace(fields.Author),
		PublishedYear: fields.PublishedYear,
		AddedBy:       actorID,
	})
	if err != nil {
		return types.Book{}, err
	}

	s.publishEvent(ctx, "book.created", book.ID, actorID)
	return book, nil
}

// Replace overwrites title, author, and published year. The existence check
// runs before the ownership check, so a non-owner probing a missing id sees
// not-found rather than forbidden. Ownership is reset to the acting user.
func (s *BookService) Replace(ctx context.Context, actorID, id int64, fields BookFields) (types.Book, error) {
	if err := validateBookFields(fields); err != nil {
		return types.Book{}, err
	}

	book, err := s.ownedBook(ctx, actorID, id)
	if err != nil {
		return types.Book{}, err
	}

	book.Title = strings.TrimSpace(fields.Title)
	book.Author = strings.TrimSpace(fields.Author)
	book.PublishedYear = fields.PublishedYear
	book.AddedBy = actorID

	updated, err := s.repo.Update(ctx, book)
	if err != nil {
		return types.Book{}, err
	}

	s.publishEvent(ctx, "book.updated", updated.ID, actorID)
	return updated, nil
}

// Merge applies only the supplied fields. Each supplied field must satisfy
// the same rule as Create; absent fields are untouched. Ownership is reset
// to the acting user.
func (s *BookService) Merge(ctx context.Context, actorID, id int64, patch BookPatch) (types.Book, error) {
	if err := validateBookPatch(patch); err != nil {
		return types.Book{}, err
	}

	book, err := s.ownedBook(ctx, actorID, id)
	if err != nil {
		return types.Book{}, err
	}

	if patch.Title != nil {
		book.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Author != nil {
		book.Author = strings.TrimSpace(*patch.Author)
	}
	if patch.PublishedYear != nil {
		book.PublishedYear = *patch.PublishedYear
	}
	book.AddedBy = actorID

	updated, err := s.repo.Update(ctx, book)
	if err != nil {
		return types.Book{}, err
	}

	s.publishEvent(ctx, "book.updated", updated.ID, actorID)
	return updated, nil
}

// Delete removes the book. The cover object, if any, is removed best-effort
// after the row is gone; the row is the source of truth.
func (s *BookService) Delete(ctx context.Context, actorID, id int64) error {
	book, err := s.ownedBook(ctx, actorID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if s.storage != nil && book.CoverKey != "" {
		if err := s.storage.Delete(ctx, book.CoverKey); err != nil {
			s.log.WithError(err).WithField("book_id", id).Warn("failed to delete cover object")
		}
	}

	s.publishEvent(ctx, "book.deleted", id, actorID)
	return nil
}

// UploadCover stores the cover image for a book the acting user owns.
func (s *BookService) UploadCover(ctx context.Context, actorID, id int64, data []byte, contentType string) error {
	if s.storage == nil {
		return ErrCoverStorageDisabled
	}

	if _, err := s.ownedBook(ctx, actorID, id); err != nil {
		return err
	}

	key := fmt.Sprintf("covers/%d", id)
	if err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return err
	}
	return s.repo.SetCoverKey(ctx, id, key)
}

// GetCover opens a reader for the book's cover image.
func (s *BookService) GetCover(ctx context.Context, id int64) (io.ReadCloser, error) {
	if s.storage == nil {
		return nil, ErrCoverStorageDisabled
	}

	book, err := s.repo.Get(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if book.CoverKey == "" {
		return nil, store.ErrNotFound
	}
	return s.storage.Get(ctx, book.CoverKey)
}

// ownedBook fetches the book and enforces ownership, in that order.
func (s *BookService) ownedBook(ctx context.Context, actorID, id int64) (types.Book, error) {
	book, err := s.repo.Get(ctx, id, false)
	if err != nil {
		return types.Book{}, err
	}
	if book.AddedBy != actorID {
		return types.Book{}, ErrForbidden
	}
	return book, nil
}

type bookEvent struct {
	Event      string    `json:"event"`
	BookID     int64     `json:"book_id"`
	ActorID    int64     `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// publishEvent emits a catalog event. Failures are logged and never fail the
// request.
func (s *BookService) publishEvent(ctx context.Context, event string, bookID, actorID int64) {
	if s.events == nil {
		return
	}

	payload, err := json.Marshal(bookEvent{
		Event:      event,
		BookID:     bookID,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.WithError(err).Warn("failed to encode catalog event")
		return
	}

	if _, err := s.events.Publish(ctx, eventsChannel, payload, map[string]string{"event": event}); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event":   event,
			"book_id": bookID,
		}).Warn("failed to publish catalog event")
	}
}

func validateBookFields(fields BookFields) error {
	problems := map[string]string{}
	if strings.TrimSpace(fields.Title) == "" {
		problems["title"] = "is required"
	}
	if strings.TrimSpace(fields.Author) == "" {
		problems["author"] = "is required"
	}
	if msg := validateYear(fields.PublishedYear); msg != "" {
		problems["published_year"] = msg
	}
	return newValidationError(problems)
}

func validateBookPatch(patch BookPatch) error {
	problems := map[string]string{}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		problems["title"] = "must not be empty"
	}
	if patch.Author != nil && strings.TrimSpace(*patch.Author) == "" {
		problems["author"] = "must not be empty"
	}
	if patch.PublishedYear != nil {
		if msg := validateYear(*patch.PublishedYear); msg != "" {
			problems["published_year"] = msg
		}
	}
	return newValidationError(problems)
}

func validateYear(year int) string {
	currentYear := time.Now().Year()
	if year < 1 || year > currentYear {
		return fmt.Sprintf("must be between 1 and %d", currentYear)
	}
	return ""
}
