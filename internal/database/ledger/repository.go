// Package ledger provides database operations for lending transactions.
//
// Records are append-mostly: Create inserts an OUT record, MarkReturned moves
// it to RETURNED once, and nothing here deletes. Methods that take a tx are
// meant to run inside the lending coordinator's unit of work.
package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/librarian/internal/entities"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// LedgerFilter narrows List. A nil MemberID lists every member's records.
type LedgerFilter struct {
	MemberID *uint
	BookID   *uint
	Status   entities.TransactionStatus
	Limit    int
	Offset   int
}

// Repository handles all transaction ledger operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new ledger repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts txn as an open checkout.
func (r *Repository) Create(tx *gorm.DB, txn *entities.Transaction) error {
	txn.Status = entities.TransactionStatusOut
	txn.ReturnDate = nil
	if txn.CheckoutDate.IsZero() {
		txn.CheckoutDate = time.Now().UTC()
	}
	return tx.Omit(clause.Associations).Create(txn).Error
}

// GetForUpdate reads a transaction inside tx and holds an exclusive row lock
// on it until tx ends.
func (r *Repository) GetForUpdate(tx *gorm.DB, id uint) (*entities.Transaction, error) {
	var txn entities.Transaction
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&txn, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// HasOpen reports whether the member currently has the book checked out.
func (r *Repository) HasOpen(tx *gorm.DB, memberID, bookID uint) (bool, error) {
	var count int64
	err := tx.Model(&entities.Transaction{}).
		Where("member_id = ? AND book_id = ? AND status = ?", memberID, bookID, entities.TransactionStatusOut).
		Count(&count).Error
	return count > 0, err
}

// CountOpenForBook returns how many copies of the book are lent out.
func (r *Repository) CountOpenForBook(tx *gorm.DB, bookID uint) (int64, error) {
	var count int64
	err := tx.Model(&entities.Transaction{}).
		Where("book_id = ? AND status = ?", bookID, entities.TransactionStatusOut).
		Count(&count).Error
	return count, err
}

// MarkReturned moves an OUT record to RETURNED. The status predicate makes a
// second call a no-op that reports ErrTransactionNotFound instead of
// overwriting the first return date.
func (r *Repository) MarkReturned(tx *gorm.DB, txn *entities.Transaction, at time.Time) error {
	result := tx.Model(&entities.Transaction{}).
		Where("id = ? AND status = ?", txn.ID, entities.TransactionStatusOut).
		Updates(map[string]any{
			"status":      entities.TransactionStatusReturned,
			"return_date": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}

	txn.Status = entities.TransactionStatusReturned
	txn.ReturnDate = &at
	return nil
}

// Load fetches a transaction with its book, member and member identity. db
// may be a transaction so the result reflects uncommitted writes.
func (r *Repository) Load(db *gorm.DB, id uint) (*entities.Transaction, error) {
	var txn entities.Transaction
	err := withRelations(db).First(&txn, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// GetByID fetches a transaction with its relations outside any unit of work.
func (r *Repository) GetByID(ctx context.Context, id uint) (*entities.Transaction, error) {
	return r.Load(r.db.WithContext(ctx), id)
}

// List returns records matching filter, newest checkout first, with the total
// number of matches ignoring pagination.
func (r *Repository) List(ctx context.Context, filter LedgerFilter) ([]entities.Transaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&entities.Transaction{})
	if filter.MemberID != nil {
		query = query.Where("member_id = ?", *filter.MemberID)
	}
	if filter.BookID != nil {
		query = query.Where("book_id = ?", *filter.BookID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var txns []entities.Transaction
	err := withRelations(query).
		Order("checkout_date DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&txns).Error
	return txns, total, err
}

// CountOpenByBook returns open checkout counts keyed by book ID, for books
// that have at least one.
func (r *Repository) CountOpenByBook(ctx context.Context) (map[uint]int64, error) {
	type row struct {
		BookID    uint
		OpenCount int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&entities.Transaction{}).
		Select("book_id, COUNT(*) AS open_count").
		Where("status = ?", entities.TransactionStatusOut).
		Group("book_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int64, len(rows))
	for _, r := range rows {
		counts[r.BookID] = r.OpenCount
	}
	return counts, nil
}

func withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Book").Preload("Member").Preload("Member.User")
}
