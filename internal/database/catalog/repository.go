// Package catalog provides database operations for books and their copy
// counters.
//
// The repository has no notion of business rules: AdjustAvailable applies
// whatever delta it is given. Callers that decrement must have checked the
// counter while holding the row lock returned by GetBookForUpdate.
//
// # Usage
//
//	repo := catalog.NewRepository(db)
//	books, total, err := repo.ListBooks(ctx, catalog.BookFilter{Title: "dune"})
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/entities"
)

var (
	ErrBookNotFound  = errors.New("book not found")
	ErrDuplicateISBN = errors.New("a book with this ISBN already exists")
	ErrBookInUse     = errors.New("book has lending history and cannot be deleted")
)

// DefaultListLimit caps listings when the caller does not ask for a limit.
const DefaultListLimit = 100

// BookFilter narrows ListBooks. Empty strings and a nil Available mean "any".
type BookFilter struct {
	Title     string
	Author    string
	ISBN      string
	Available *bool
	Limit     int
	Offset    int
}

// BookDetails holds the descriptive fields an administrator may edit.
// Nil fields are left unchanged. Copy counters are deliberately absent.
type BookDetails struct {
	Title         *string
	Author        *string
	ISBN          *string
	PublishedDate *time.Time
}

// Repository handles all book database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new catalog repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetBookByID retrieves a book without locking it.
func (r *Repository) GetBookByID(ctx context.Context, id uint) (*entities.Book, error) {
	var book entities.Book
	err := r.db.WithContext(ctx).First(&book, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return &book, nil
}

// GetBookForUpdate reads a book inside tx and holds an exclusive row lock on
// it until tx ends. On SQLite the FOR UPDATE clause is dropped by the driver;
// the transaction itself already holds the database write lock.
func (r *Repository) GetBookForUpdate(tx *gorm.DB, id uint) (*entities.Book, error) {
	var book entities.Book
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&book, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return &book, nil
}

// FindByISBN retrieves a book by its exact ISBN.
func (r *Repository) FindByISBN(ctx context.Context, isbn string) (*entities.Book, error) {
	var book entities.Book
	err := r.db.WithContext(ctx).Where("isbn = ?", isbn).First(&book).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return &book, nil
}

// ListBooks returns books matching filter ordered by title, plus the total
// number of matches ignoring pagination.
func (r *Repository) ListBooks(ctx context.Context, filter BookFilter) ([]entities.Book, int64, error) {
	query := r.db.WithContext(ctx).Model(&entities.Book{})

	if filter.Available != nil {
		if *filter.Available {
			query = query.Where("copies_available > 0")
		} else {
			query = query.Where("copies_available <= 0")
		}
	}
	if filter.Title != "" {
		query = query.Where("LOWER(title) LIKE LOWER(?) ESCAPE '\\'", containsPattern(filter.Title))
	}
	if filter.Author != "" {
		query = query.Where("LOWER(author) LIKE LOWER(?) ESCAPE '\\'", containsPattern(filter.Author))
	}
	if filter.ISBN != "" {
		query = query.Where("LOWER(isbn) LIKE LOWER(?) ESCAPE '\\'", containsPattern(filter.ISBN))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var books []entities.Book
	err := query.Order("title ASC, id ASC").Limit(limit).Offset(offset).Find(&books).Error
	return books, total, err
}

// CopyCounters is the part of a book the reconciler compares with the ledger.
type CopyCounters struct {
	ID              uint
	TotalCopies     int
	CopiesAvailable int
}

// ListCopyCounters reads every book's counters in ID order without locking.
func (r *Repository) ListCopyCounters(ctx context.Context) ([]CopyCounters, error) {
	var counters []CopyCounters
	err := r.db.WithContext(ctx).Model(&entities.Book{}).
		Select("id, total_copies, copies_available").
		Order("id ASC").
		Scan(&counters).Error
	return counters, err
}

// CreateBook inserts a new book with every copy available.
func (r *Repository) CreateBook(ctx context.Context, book *entities.Book) error {
	if book.TotalCopies < 0 {
		return fmt.Errorf("total copies must not be negative")
	}
	book.CopiesAvailable = book.TotalCopies

	if err := r.db.WithContext(ctx).Create(book).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateISBN
		}
		return err
	}
	return nil
}

// UpdateBookDetails changes descriptive fields only.
func (r *Repository) UpdateBookDetails(ctx context.Context, id uint, details BookDetails) (*entities.Book, error) {
	updates := map[string]any{}
	if details.Title != nil {
		updates["title"] = *details.Title
	}
	if details.Author != nil {
		updates["author"] = *details.Author
	}
	if details.ISBN != nil {
		updates["isbn"] = *details.ISBN
	}
	if details.PublishedDate != nil {
		updates["published_date"] = *details.PublishedDate
	}

	db := r.db.WithContext(ctx)
	if len(updates) > 0 {
		result := db.Model(&entities.Book{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			if database.IsUniqueViolation(result.Error) {
				return nil, ErrDuplicateISBN
			}
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, ErrBookNotFound
		}
	}

	return r.GetBookByID(ctx, id)
}

// UpsertByISBN creates the book or, when one with the same ISBN exists,
// refreshes its descriptive fields. Copy counters of an existing book are not
// touched. The second return value reports whether a row was inserted.
func (r *Repository) UpsertByISBN(ctx context.Context, book *entities.Book) (*entities.Book, bool, error) {
	existing, err := r.FindByISBN(ctx, book.ISBN)
	if errors.Is(err, ErrBookNotFound) {
		if err := r.CreateBook(ctx, book); err != nil {
			return nil, false, err
		}
		return book, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	updated, err := r.UpdateBookDetails(ctx, existing.ID, BookDetails{
		Title:         &book.Title,
		Author:        &book.Author,
		PublishedDate: book.PublishedDate,
	})
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}

// DeleteBook removes a book that has never been lent. Books with lending
// history are kept so the ledger stays complete.
func (r *Repository) DeleteBook(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.GetBookForUpdate(tx, id); err != nil {
			return err
		}

		var refs int64
		if err := tx.Model(&entities.Transaction{}).Where("book_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return ErrBookInUse
		}

		return tx.Delete(&entities.Book{}, id).Error
	})
}

// AdjustAvailable adds delta to the book's available counter in one UPDATE
// statement. It performs no bounds check.
func (r *Repository) AdjustAvailable(tx *gorm.DB, id uint, delta int) error {
	result := tx.Model(&entities.Book{}).
		Where("id = ?", id).
		Update("copies_available", gorm.Expr("copies_available + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// SetCopies overwrites both counters. Callers compute available from the
// ledger while holding the book lock.
func (r *Repository) SetCopies(tx *gorm.DB, id uint, total, available int) error {
	result := tx.Model(&entities.Book{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_copies":     total,
			"copies_available": available,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// containsPattern builds a LIKE pattern matching value anywhere, with LIKE
// wildcards in value treated literally.
func containsPattern(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(value) + "%"
}
