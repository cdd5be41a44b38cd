package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/policy"
	"github.com/mrlokans/librarian/internal/query"
)

const (
	dateLayout = "2006-01-02"
	// Copies a new title gets when the request leaves total_copies out.
	defaultTotalCopies = 1
)

// BooksController serves the catalog. Reads go through the query facade;
// copy counts are changed only through the lending coordinator.
type BooksController struct {
	facade  *query.Facade
	catalog CatalogWriter
	lender  Lender
	audit   *audit.Service
}

func NewBooksController(facade *query.Facade, catalog CatalogWriter, lender Lender, auditService *audit.Service) *BooksController {
	return &BooksController{
		facade:  facade,
		catalog: catalog,
		lender:  lender,
		audit:   auditService,
	}
}

type createBookRequest struct {
	Title         string `json:"title" binding:"required,max=300"`
	Author        string `json:"author" binding:"required,max=200"`
	ISBN          string `json:"isbn" binding:"required,max=20,isbn"`
	PublishedDate string `json:"published_date" binding:"omitempty,datetime=2006-01-02"`
	TotalCopies   *int   `json:"total_copies" binding:"omitempty,min=0"`
}

type updateBookRequest struct {
	Title         *string `json:"title" binding:"omitempty,min=1,max=300"`
	Author        *string `json:"author" binding:"omitempty,min=1,max=200"`
	ISBN          *string `json:"isbn" binding:"omitempty,max=20,isbn"`
	PublishedDate *string `json:"published_date" binding:"omitempty,datetime=2006-01-02"`

	// Present only to reject them with a pointer to the copies endpoint
	TotalCopies     *int `json:"total_copies"`
	CopiesAvailable *int `json:"copies_available"`
}

type setCopiesRequest struct {
	TotalCopies *int `json:"total_copies" binding:"required,min=0"`
}

// ListBooks handles GET /api/books
func (bc *BooksController) ListBooks(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}

	filter := catalog.BookFilter{
		Title:  c.Query("title"),
		Author: c.Query("author"),
		ISBN:   c.Query("isbn"),
		Limit:  limit,
		Offset: offset,
	}
	if raw, present := c.GetQuery("available"); present {
		available := parseTruthy(raw)
		filter.Available = &available
	}

	page, err := bc.facade.ListBooks(c.Request.Context(), auth.GetCaller(c), filter)
	if err != nil {
		respondLendingError(c, err, "list books")
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetBook handles GET /api/books/:id
func (bc *BooksController) GetBook(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	book, err := bc.facade.GetBook(c.Request.Context(), id)
	if err != nil {
		respondLendingError(c, err, "get book")
		return
	}
	c.JSON(http.StatusOK, book)
}

// CreateBook handles POST /api/books
func (bc *BooksController) CreateBook(c *gin.Context) {
	if err := policy.Authorize(auth.GetCaller(c), policy.WriteCatalog); err != nil {
		respondLendingError(c, err, "create book")
		return
	}

	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	book := &entities.Book{
		Title:       strings.TrimSpace(req.Title),
		Author:      strings.TrimSpace(req.Author),
		ISBN:        strings.TrimSpace(req.ISBN),
		TotalCopies: defaultTotalCopies,
	}
	if req.TotalCopies != nil {
		book.TotalCopies = *req.TotalCopies
	}
	if book.Title == "" || book.Author == "" {
		respondBadRequest(c, msgBlankTitleOrAuthor)
		return
	}
	if req.PublishedDate != "" {
		published, _ := time.Parse(dateLayout, req.PublishedDate)
		book.PublishedDate = &published
	}

	if err := bc.catalog.CreateBook(c.Request.Context(), book); err != nil {
		respondLendingError(c, err, "create book")
		return
	}

	if bc.audit != nil {
		bc.audit.LogCatalog(actorFromContext(c), "book_create", book.ID,
			fmt.Sprintf("Created %q (%s) with %d copies", book.Title, book.ISBN, book.TotalCopies))
	}
	c.JSON(http.StatusCreated, book)
}

// UpdateBook handles PATCH /api/books/:id
func (bc *BooksController) UpdateBook(c *gin.Context) {
	if err := policy.Authorize(auth.GetCaller(c), policy.WriteCatalog); err != nil {
		respondLendingError(c, err, "update book")
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req updateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	if req.TotalCopies != nil || req.CopiesAvailable != nil {
		respondBadRequest(c, "copy counts are changed through PUT /api/books/:id/copies")
		return
	}

	details := catalog.BookDetails{
		Title:  trimmed(req.Title),
		Author: trimmed(req.Author),
		ISBN:   trimmed(req.ISBN),
	}
	if blank(details.Title) || blank(details.Author) {
		respondBadRequest(c, msgBlankTitleOrAuthor)
		return
	}
	if req.PublishedDate != nil {
		published, _ := time.Parse(dateLayout, *req.PublishedDate)
		details.PublishedDate = &published
	}

	book, err := bc.catalog.UpdateBookDetails(c.Request.Context(), id, details)
	if err != nil {
		respondLendingError(c, err, "update book")
		return
	}

	if bc.audit != nil {
		bc.audit.LogCatalog(actorFromContext(c), "book_update", book.ID, fmt.Sprintf("Updated %q", book.Title))
	}
	c.JSON(http.StatusOK, book)
}

// SetCopies handles PUT /api/books/:id/copies
func (bc *BooksController) SetCopies(c *gin.Context) {
	if err := policy.Authorize(auth.GetCaller(c), policy.WriteCatalog); err != nil {
		respondLendingError(c, err, "set copies")
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req setCopiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	book, err := bc.lender.SetTotalCopies(c.Request.Context(), id, *req.TotalCopies)
	if err != nil {
		respondLendingError(c, err, "set copies")
		return
	}

	if bc.audit != nil {
		bc.audit.LogCatalog(actorFromContext(c), "book_copies", book.ID,
			fmt.Sprintf("Set total copies of %q to %d (%d available)", book.Title, book.TotalCopies, book.CopiesAvailable))
	}
	c.JSON(http.StatusOK, book)
}

// DeleteBook handles DELETE /api/books/:id
func (bc *BooksController) DeleteBook(c *gin.Context) {
	if err := policy.Authorize(auth.GetCaller(c), policy.WriteCatalog); err != nil {
		respondLendingError(c, err, "delete book")
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := bc.catalog.DeleteBook(c.Request.Context(), id); err != nil {
		respondLendingError(c, err, "delete book")
		return
	}

	if bc.audit != nil {
		bc.audit.LogCatalog(actorFromContext(c), "book_delete", id, fmt.Sprintf("Deleted book %d", id))
	}
	c.Status(http.StatusNoContent)
}

const msgBlankTitleOrAuthor = "title and author must not be blank"

func blank(s *string) bool {
	return s != nil && *s == ""
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
