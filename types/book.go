package types

import "time"

// Book represents a catalog record owned by the user who added it.
// Only the owner may update or delete the record.
type Book struct {
	// ID is the unique identifier of the book.
	ID int64 `json:"id" db:"id"`

	// Title is the book's title.
	Title string `json:"title" db:"title"`

	// Author is the book's author.
	Author string `json:"author" db:"author"`

	// PublishedYear is the calendar year of publication.
	// Valid values range from 1 to the current year.
	PublishedYear int `json:"published_year" db:"published_year"`

	// AddedBy references the ID of the user who owns this record.
	// It is reset to the acting user on every update.
	AddedBy int64 `json:"added_by" db:"added_by"`

	// AddedByUser is the expanded owner reference. It is populated only
	// when the read path requests expansion.
	AddedByUser *UserRef `json:"added_by_user,omitempty" db:"-"`

	// CoverKey is the object-storage key of the book's cover image.
	// Empty when no cover has been uploaded.
	CoverKey string `json:"-" db:"cover_key"`

	// HasCover reports whether a cover image is available for this book.
	HasCover bool `json:"has_cover" db:"-"`

	// CreatedAt is the timestamp at which the book was added.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the book.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
