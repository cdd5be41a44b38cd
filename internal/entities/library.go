package entities

import (
	"strings"
	"time"
)

type TransactionStatus string

const (
	TransactionStatusOut      TransactionStatus = "OUT" // Open: the copy is lent out
	TransactionStatusReturned TransactionStatus = "RETURNED"
)

// Book is a catalog entry. Copies are tracked as counts only.
//
// CopiesAvailable always equals TotalCopies minus the number of OUT
// transactions for the book. Both counters are written by the lending
// coordinator only.
type Book struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Title           string     `gorm:"index;size:300;not null" json:"title"`
	Author          string     `gorm:"index;size:200;not null" json:"author"`
	ISBN            string     `gorm:"uniqueIndex;size:20;not null" json:"isbn"`
	PublishedDate   *time.Time `gorm:"type:date" json:"published_date,omitempty"`
	TotalCopies     int        `gorm:"not null" json:"total_copies"`
	CopiesAvailable int        `gorm:"not null;check:copies_available >= 0" json:"copies_available"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Member is the library profile linked one-to-one to a User.
type Member struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	User             User      `gorm:"foreignKey:UserID" json:"user"`
	DateOfMembership time.Time `gorm:"type:date" json:"date_of_membership"`
	IsActiveMember   bool      `gorm:"default:true" json:"is_active_member"`
	CreatedAt        time.Time `json:"-"`
	UpdatedAt        time.Time `json:"-"`
}

// Transaction records one checkout of one copy. It is created OUT and moves
// to RETURNED exactly once; it is never deleted.
type Transaction struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	MemberID     uint              `gorm:"not null;index:idx_transactions_member_book_status,priority:1" json:"user"`
	BookID       uint              `gorm:"not null;index:idx_transactions_member_book_status,priority:2" json:"book_id"`
	Status       TransactionStatus `gorm:"size:10;not null;default:'OUT';index:idx_transactions_member_book_status,priority:3" json:"status"`
	CheckoutDate time.Time         `gorm:"index;not null" json:"checkout_date"`
	ReturnDate   *time.Time        `json:"return_date"`
	Member       *Member           `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	Book         *Book             `gorm:"foreignKey:BookID" json:"book,omitempty"`
}

// IsOpen reports whether the copy is still lent out.
func (t Transaction) IsOpen() bool {
	return t.Status == TransactionStatusOut
}

func (Book) TableName() string {
	return "books"
}

func (Member) TableName() string {
	return "members"
}

func (Transaction) TableName() string {
	return "transactions"
}

// IsValidISBN reports whether s looks like an ISBN-10 or ISBN-13. Hyphens and
// spaces are ignored; an ISBN-10 may end in X.
func IsValidISBN(s string) bool {
	digits := strings.NewReplacer("-", "", " ", "").Replace(strings.TrimSpace(s))
	switch len(digits) {
	case 10:
		for i, r := range digits {
			if r >= '0' && r <= '9' {
				continue
			}
			if i == 9 && (r == 'X' || r == 'x') {
				continue
			}
			return false
		}
		return true
	case 13:
		for _, r := range digits {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	default:
		return false
	}
}
