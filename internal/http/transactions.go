package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/entities"
	"github.com/mrlokans/librarian/internal/policy"
	"github.com/mrlokans/librarian/internal/query"
)

// TransactionsController exposes checkout and return plus the caller's view
// of the ledger.
type TransactionsController struct {
	lender Lender
	facade *query.Facade
	audit  *audit.Service
}

func NewTransactionsController(lender Lender, facade *query.Facade, auditService *audit.Service) *TransactionsController {
	return &TransactionsController{
		lender: lender,
		facade: facade,
		audit:  auditService,
	}
}

type checkoutRequest struct {
	BookID uint `json:"book_id" binding:"required,min=1"`
}

type returnRequest struct {
	TransactionID uint `json:"transaction_id" binding:"required,min=1"`
}

// Checkout handles POST /api/transactions/checkout
func (tc *TransactionsController) Checkout(c *gin.Context) {
	caller := auth.GetCaller(c)
	if err := policy.Authorize(caller, policy.Checkout); err != nil {
		respondLendingError(c, err, "checkout")
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	txn, err := tc.lender.Checkout(c.Request.Context(), caller.MemberID, req.BookID)
	if tc.audit != nil {
		var txnID uint
		if txn != nil {
			txnID = txn.ID
		}
		tc.audit.LogCheckout(actorFromContext(c), caller.MemberID, req.BookID, txnID, err)
	}
	if err != nil {
		respondLendingError(c, err, "checkout")
		return
	}
	c.JSON(http.StatusCreated, txn)
}

// Return handles POST /api/transactions/return
func (tc *TransactionsController) Return(c *gin.Context) {
	caller := auth.GetCaller(c)
	if err := policy.Authorize(caller, policy.Return); err != nil {
		respondLendingError(c, err, "return")
		return
	}

	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	txn, err := tc.lender.Return(c.Request.Context(), req.TransactionID, caller)
	if tc.audit != nil {
		tc.audit.LogReturn(actorFromContext(c), req.TransactionID, err)
	}
	if err != nil {
		respondLendingError(c, err, "return")
		return
	}
	c.JSON(http.StatusOK, txn)
}

// ListTransactions handles GET /api/transactions
func (tc *TransactionsController) ListTransactions(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}
	bookID, ok := parseOptionalQueryID(c, "book_id")
	if !ok {
		return
	}

	filter := query.TransactionFilter{BookID: bookID, Limit: limit, Offset: offset}
	if raw := c.Query("status"); raw != "" {
		status := entities.TransactionStatus(strings.ToUpper(raw))
		if status != entities.TransactionStatusOut && status != entities.TransactionStatusReturned {
			respondBadRequest(c, "status must be OUT or RETURNED")
			return
		}
		filter.Status = status
	}

	page, err := tc.facade.ListTransactions(c.Request.Context(), auth.GetCaller(c), filter)
	if err != nil {
		respondLendingError(c, err, "list transactions")
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetTransaction handles GET /api/transactions/:id
func (tc *TransactionsController) GetTransaction(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	txn, err := tc.facade.GetTransaction(c.Request.Context(), auth.GetCaller(c), id)
	if err != nil {
		respondLendingError(c, err, "get transaction")
		return
	}
	c.JSON(http.StatusOK, txn)
}
