// Package query serves read-only views of the catalog, members and ledger,
// scoped to what the caller is allowed to see.
package query

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/ledger"
	"github.com/mrlokans/librarian/internal/database/members"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/lending"
	"github.com/mrlokans/librarian/internal/policy"
)

// TransactionFilter narrows ListTransactions. The member scope is derived
// from the caller and cannot be widened here.
type TransactionFilter struct {
	BookID *uint
	Status entities.TransactionStatus
	Limit  int
	Offset int
}

// Page wraps one page of results with the unpaginated total.
type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type Facade struct {
	catalog *catalog.Repository
	ledger  *ledger.Repository
	members *members.Repository
}

func NewFacade(db *gorm.DB) *Facade {
	return &Facade{
		catalog: catalog.NewRepository(db),
		ledger:  ledger.NewRepository(db),
		members: members.NewRepository(db),
	}
}

func (f *Facade) ListBooks(ctx context.Context, caller policy.Caller, filter catalog.BookFilter) (*Page[entities.Book], error) {
	if err := policy.Authorize(caller, policy.ReadCatalog); err != nil {
		return nil, err
	}
	books, total, err := f.catalog.ListBooks(ctx, filter)
	if err != nil {
		return nil, err
	}
	return newPage(books, total, filter.Limit, filter.Offset, catalog.DefaultListLimit), nil
}

func (f *Facade) GetBook(ctx context.Context, id uint) (*entities.Book, error) {
	book, err := f.catalog.GetBookByID(ctx, id)
	if errors.Is(err, catalog.ErrBookNotFound) {
		return nil, fmt.Errorf("%w: %w", lending.ErrNotFound, err)
	}
	return book, err
}

// ListTransactions returns every transaction for administrators and only the
// caller's own for everyone else.
func (f *Facade) ListTransactions(ctx context.Context, caller policy.Caller, filter TransactionFilter) (*Page[entities.Transaction], error) {
	if err := policy.Authorize(caller, policy.ListTransactions); err != nil {
		return nil, err
	}
	scope, err := policy.TransactionScope(caller)
	if err != nil {
		return nil, err
	}

	txns, total, err := f.ledger.List(ctx, ledger.LedgerFilter{
		MemberID: scope,
		BookID:   filter.BookID,
		Status:   filter.Status,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	})
	if err != nil {
		return nil, err
	}
	return newPage(txns, total, filter.Limit, filter.Offset, 50), nil
}

// GetTransaction hides other members' records behind ErrNotFound so their
// existence does not leak.
func (f *Facade) GetTransaction(ctx context.Context, caller policy.Caller, id uint) (*entities.Transaction, error) {
	if err := policy.Authorize(caller, policy.ListTransactions); err != nil {
		return nil, err
	}
	scope, err := policy.TransactionScope(caller)
	if err != nil {
		return nil, err
	}

	txn, err := f.ledger.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			return nil, fmt.Errorf("%w: %w", lending.ErrNotFound, err)
		}
		return nil, err
	}
	if scope != nil && txn.MemberID != *scope {
		return nil, fmt.Errorf("%w: %w", lending.ErrNotFound, ledger.ErrTransactionNotFound)
	}
	return txn, nil
}

func (f *Facade) ListMembers(ctx context.Context, caller policy.Caller, limit, offset int) (*Page[entities.Member], error) {
	if err := policy.Authorize(caller, policy.ReadMembers); err != nil {
		return nil, err
	}
	list, total, err := f.members.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return newPage(list, total, limit, offset, 50), nil
}

func (f *Facade) GetMember(ctx context.Context, caller policy.Caller, id uint) (*entities.Member, error) {
	if err := policy.Authorize(caller, policy.ReadMembers); err != nil {
		return nil, err
	}
	member, err := f.members.GetByID(ctx, id)
	if errors.Is(err, members.ErrMemberNotFound) {
		return nil, fmt.Errorf("%w: %w", lending.ErrNotFound, err)
	}
	return member, err
}

// OwnProfile returns the caller's member profile.
func (f *Facade) OwnProfile(ctx context.Context, caller policy.Caller) (*entities.Member, error) {
	if !caller.Authenticated() {
		return nil, policy.ErrUnauthenticated
	}
	member, err := f.members.GetByUserID(ctx, caller.UserID)
	if errors.Is(err, members.ErrMemberNotFound) {
		return nil, fmt.Errorf("%w: %w", lending.ErrNotFound, err)
	}
	return member, err
}

func newPage[T any](items []T, total int64, limit, offset, defaultLimit int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return &Page[T]{Items: items, Total: total, Limit: limit, Offset: offset}
}
