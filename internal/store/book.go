package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shelfmark/apiserver/types"
)

// BookRepository handles persistence for books.
type BookRepository struct {
	db *sql.DB
}

func NewBookRepository(db *sql.DB) *BookRepository {
	return &BookRepository{db: db}
}

func (r *BookRepository) List(ctx context.Context, expandOwner bool) ([]types.Book, error) {
	const listQuery = `
		SELECT b.id, b.title, b.author, b.published_year, b.added_by, b.cover_key,
			b.created_at, b.updated_at, u.username
		FROM books b
		LEFT JOIN users u ON u.id = b.added_by
		ORDER BY b.id`
	rows, err := r.db.QueryContext(ctx, listQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]types.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows, expandOwner)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *BookRepository) Get(ctx context.Context, id int64, expandOwner bool) (types.Book, error) {
	const query = `
		SELECT b.id, b.title, b.author, b.published_year, b.added_by, b.cover_key,
			b.created_at, b.updated_at, u.username
		FROM books b
		LEFT JOIN users u ON u.id = b.added_by
		WHERE b.id = $1`
	book, err := scanBook(r.db.QueryRowContext(ctx, query, id), expandOwner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, err
	}
	return book, nil
}

func (r *BookRepository) Create(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now

	const query = `
		INSERT INTO books (title, author, published_year, added_by, cover_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.PublishedYear,
		book.AddedBy,
		book.CoverKey,
		book.CreatedAt,
		book.UpdatedAt,
	).Scan(&book.ID); err != nil {
		return types.Book{}, err
	}
	book.HasCover = book.CoverKey != ""
	return book, nil
}

func (r *BookRepository) Update(ctx context.Context, book types.Book) (types.Book, error) {
	book.UpdatedAt = time.Now()

	const query = `
		UPDATE books
		SET title = $1,
			author = $2,
			published_year = $3,
			added_by = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		book.Title,
		book.Author,
		book.PublishedYear,
		book.AddedBy,
		book.UpdatedAt,
		book.ID,
	)
	if err != nil {
		return types.Book{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Book{}, err
	}
	if affected == 0 {
		return types.Book{}, ErrNotFound
	}
	book.HasCover = book.CoverKey != ""
	return book, nil
}

func (r *BookRepository) SetCoverKey(ctx context.Context, id int64, coverKey string) error {
	const query = `
		UPDATE books
		SET cover_key = $1,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, coverKey, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *BookRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM books WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner, expandOwner bool) (types.Book, error) {
	var book types.Book
	var username sql.NullString
	if err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.PublishedYear,
		&book.AddedBy,
		&book.CoverKey,
		&book.CreatedAt,
		&book.UpdatedAt,
		&username,
	); err != nil {
		return types.Book{}, err
	}
	book.HasCover = book.CoverKey != ""
	if expandOwner && username.Valid {
		book.AddedByUser = &types.UserRef{
			ID:       book.AddedBy,
			Username: username.String,
		}
	}
	return book, nil
}
