package http

import (
	"context"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/policy"
)

// This file collects the narrow interfaces controllers depend on. The
// production implementations live in lending, database/catalog,
// database/members and tasks.

// Lender performs the mutations that touch copy counters.
type Lender interface {
	Checkout(ctx context.Context, memberID, bookID uint) (*entities.Transaction, error)
	Return(ctx context.Context, transactionID uint, requester policy.Caller) (*entities.Transaction, error)
	SetTotalCopies(ctx context.Context, bookID uint, total int) (*entities.Book, error)
}

// CatalogWriter edits descriptive book data.
type CatalogWriter interface {
	CreateBook(ctx context.Context, book *entities.Book) error
	UpdateBookDetails(ctx context.Context, id uint, details catalog.BookDetails) (*entities.Book, error)
	DeleteBook(ctx context.Context, id uint) error
}

// MemberWriter toggles membership status.
type MemberWriter interface {
	SetActive(ctx context.Context, id uint, active bool) (*entities.Member, error)
}

// TaskQueue enqueues background tasks and reports on them.
type TaskQueue interface {
	Enqueue(ctx context.Context, task backlite.Task) (string, error)
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

// Rescheduler applies changed schedule settings.
type Rescheduler interface {
	Reschedule(ctx context.Context) error
}
