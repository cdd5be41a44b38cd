// Package lending keeps book counters and the transaction ledger consistent.
//
// Every mutation runs in one database transaction that first takes an
// exclusive lock on the row it serializes on: the book for Checkout,
// SetTotalCopies and Reconcile, the transaction record for Return. Inside the
// process the same keys are also guarded by a mutex, so concurrent requests
// queue in memory instead of contending for the database lock.
//
// For every book, at every commit:
//
//	copies_available = total_copies - count(OUT transactions) >= 0
package lending

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/ledger"
	"github.com/mrlokans/librarian/internal/database/members"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/policy"
)

// Drift describes a book whose available counter disagrees with the ledger.
type Drift struct {
	BookID           uint   `json:"book_id"`
	Title            string `json:"title"`
	TotalCopies      int    `json:"total_copies"`
	CopiesAvailable  int    `json:"copies_available"`
	OpenTransactions int64  `json:"open_transactions"`
	Expected         int    `json:"expected_available"`
	Fixed            bool   `json:"fixed"`
}

type Coordinator struct {
	db      *gorm.DB
	catalog *catalog.Repository
	ledger  *ledger.Repository
	members *members.Repository

	locks      *keyLock
	retries    int
	retryDelay time.Duration
	now        func() time.Time
}

func NewCoordinator(db *gorm.DB, cfg config.Lending) *Coordinator {
	retries := cfg.LockRetries
	if retries < 0 {
		retries = 0
	}
	return &Coordinator{
		db:         db,
		catalog:    catalog.NewRepository(db),
		ledger:     ledger.NewRepository(db),
		members:    members.NewRepository(db),
		locks:      newKeyLock(),
		retries:    retries,
		retryDelay: cfg.LockRetryDelay,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Checkout lends one copy of bookID to memberID.
func (c *Coordinator) Checkout(ctx context.Context, memberID, bookID uint) (*entities.Transaction, error) {
	unlock := c.locks.Lock(bookKey(bookID))
	defer unlock()

	var result *entities.Transaction
	err := c.withinTx(ctx, "checkout", func(tx *gorm.DB) error {
		book, err := c.catalog.GetBookForUpdate(tx, bookID)
		if err != nil {
			return mapRepoError(err)
		}

		member, err := c.members.Lookup(tx, memberID)
		if err != nil {
			return mapRepoError(err)
		}
		if !member.IsActiveMember {
			return fmt.Errorf("%w: membership is inactive", ErrForbidden)
		}

		if book.CopiesAvailable <= 0 {
			return fmt.Errorf("%w: %q", ErrUnavailable, book.Title)
		}

		open, err := c.ledger.HasOpen(tx, memberID, bookID)
		if err != nil {
			return err
		}
		if open {
			return ErrConflict
		}

		txn := &entities.Transaction{
			MemberID:     memberID,
			BookID:       bookID,
			CheckoutDate: c.now(),
		}
		if err := c.ledger.Create(tx, txn); err != nil {
			return err
		}
		if err := c.catalog.AdjustAvailable(tx, bookID, -1); err != nil {
			return err
		}

		result, err = c.ledger.Load(tx, txn.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[LENDING] Checkout: transaction %d, member %d, book %d", result.ID, memberID, bookID)
	return result, nil
}

// Return closes an open transaction. Only the borrowing member's identity or
// an administrator may return it.
func (c *Coordinator) Return(ctx context.Context, transactionID uint, requester policy.Caller) (*entities.Transaction, error) {
	unlock := c.locks.Lock(transactionKey(transactionID))
	defer unlock()

	var result *entities.Transaction
	err := c.withinTx(ctx, "return", func(tx *gorm.DB) error {
		txn, err := c.ledger.GetForUpdate(tx, transactionID)
		if err != nil {
			return mapRepoError(err)
		}
		if !txn.IsOpen() {
			return ErrInvalidState
		}

		member, err := c.members.Lookup(tx, txn.MemberID)
		if err != nil {
			return mapRepoError(err)
		}
		if !policy.CanActFor(requester, member.UserID) {
			return fmt.Errorf("%w: transaction belongs to another member", ErrForbidden)
		}

		if err := c.ledger.MarkReturned(tx, txn, c.now()); err != nil {
			if errors.Is(err, ledger.ErrTransactionNotFound) {
				return ErrInvalidState
			}
			return err
		}
		if err := c.catalog.AdjustAvailable(tx, txn.BookID, 1); err != nil {
			return mapRepoError(err)
		}

		result, err = c.ledger.Load(tx, txn.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[LENDING] Return: transaction %d, book %d, by %s", result.ID, result.BookID, requester)
	return result, nil
}

// SetTotalCopies changes how many physical copies the library owns and
// recomputes the available counter from the ledger.
func (c *Coordinator) SetTotalCopies(ctx context.Context, bookID uint, total int) (*entities.Book, error) {
	if total < 0 {
		return nil, fmt.Errorf("%w: total copies must not be negative", ErrValidation)
	}

	unlock := c.locks.Lock(bookKey(bookID))
	defer unlock()

	var result *entities.Book
	err := c.withinTx(ctx, "set copies", func(tx *gorm.DB) error {
		book, err := c.catalog.GetBookForUpdate(tx, bookID)
		if err != nil {
			return mapRepoError(err)
		}

		open, err := c.ledger.CountOpenForBook(tx, bookID)
		if err != nil {
			return err
		}
		if int64(total) < open {
			return fmt.Errorf("%w: %d copies are checked out, total cannot be %d", ErrValidation, open, total)
		}

		available := total - int(open)
		if err := c.catalog.SetCopies(tx, bookID, total, available); err != nil {
			return err
		}
		book.TotalCopies = total
		book.CopiesAvailable = available
		result = book
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Reconcile compares every book's available counter with the ledger. With
// fix set, drifted counters are rewritten under the book lock. A book whose
// open transactions exceed its total gets its total raised to match.
//
// One unlocked scan of the counters and one grouped count of open
// transactions pick the suspects. Only those are re-read under the book lock,
// where a checkout that landed between the two reads drops out.
func (c *Coordinator) Reconcile(ctx context.Context, fix bool) ([]Drift, error) {
	books, err := c.catalog.ListCopyCounters(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	open, err := c.ledger.CountOpenByBook(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count open transactions: %w", err)
	}

	drifts := []Drift{}
	for _, b := range books {
		if err := ctx.Err(); err != nil {
			return drifts, err
		}
		if _, _, drifted := reconciledCounters(b.TotalCopies, b.CopiesAvailable, open[b.ID]); !drifted {
			continue
		}

		drift, err := c.reconcileBook(ctx, b.ID, fix)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue // deleted while we were scanning
			}
			return drifts, fmt.Errorf("book %d: %w", b.ID, err)
		}
		if drift != nil {
			drifts = append(drifts, *drift)
		}
	}

	if len(drifts) > 0 {
		log.Printf("[LENDING] Reconcile: %d of %d books drifted (fix=%v)", len(drifts), len(books), fix)
	}
	return drifts, nil
}

// reconciledCounters returns the counters a book with open lent copies should
// have, and whether they differ from the stored ones.
func reconciledCounters(total, available int, open int64) (wantTotal, wantAvailable int, drifted bool) {
	wantTotal = total
	if int64(wantTotal) < open {
		wantTotal = int(open)
	}
	wantAvailable = wantTotal - int(open)
	return wantTotal, wantAvailable, wantTotal != total || wantAvailable != available
}

func (c *Coordinator) reconcileBook(ctx context.Context, bookID uint, fix bool) (*Drift, error) {
	unlock := c.locks.Lock(bookKey(bookID))
	defer unlock()

	var drift *Drift
	err := c.withinTx(ctx, "reconcile", func(tx *gorm.DB) error {
		drift = nil

		book, err := c.catalog.GetBookForUpdate(tx, bookID)
		if err != nil {
			return mapRepoError(err)
		}
		open, err := c.ledger.CountOpenForBook(tx, bookID)
		if err != nil {
			return err
		}

		total, expected, drifted := reconciledCounters(book.TotalCopies, book.CopiesAvailable, open)
		if !drifted {
			return nil
		}

		drift = &Drift{
			BookID:           book.ID,
			Title:            book.Title,
			TotalCopies:      book.TotalCopies,
			CopiesAvailable:  book.CopiesAvailable,
			OpenTransactions: open,
			Expected:         expected,
		}
		if !fix {
			return nil
		}
		if err := c.catalog.SetCopies(tx, bookID, total, expected); err != nil {
			return err
		}
		drift.Fixed = true
		return nil
	})
	return drift, err
}

// withinTx runs fn in a database transaction, restarting it from scratch
// when the database reports lock contention.
func (c *Coordinator) withinTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(attempt)
			log.Printf("[LENDING] %s: lock contention (%v), retry %d/%d in %s", op, err, attempt, c.retries, delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err = c.db.WithContext(ctx).Transaction(fn)
		if err == nil || !database.IsLockContention(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, catalog.ErrBookNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, ledger.ErrTransactionNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, members.ErrMemberNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return err
	}
}

func bookKey(id uint) string {
	return fmt.Sprintf("book:%d", id)
}

func transactionKey(id uint) string {
	return fmt.Sprintf("transaction:%d", id)
}
