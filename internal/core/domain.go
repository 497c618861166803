package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Credit TransactionKind = "CREDIT"
	Debit  TransactionKind = "DEBIT"
)

type (
	TransactionKind string

	Money struct {
		Cents int64
	}

	// Transaction is a single ledger entry owned by one user. Records are
	// immutable after create; an update replaces every mutable field.
	Transaction struct {
		ID          string
		UserID      string
		Kind        TransactionKind
		Amount      Money
		Title       string
		Description string
		Category    string // optional; blank means uncategorized
		Date        Date
		CreatedAt   time.Time
	}

	Date struct {
		time.Time
	}
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidKind   = errors.New("invalid transaction kind")
	ErrInvalidDate   = errors.New("invalid date")
	ErrEmptyTitle    = errors.New("empty title")
	ErrEmptyUserID   = errors.New("empty user id")
)

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (k TransactionKind) Validate() error {
	switch k {
	case Credit, Debit:
		return nil
	}
	return ErrInvalidKind
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns the exact sum of two amounts. Integer cent addition is
// associative, so accumulating a transaction set in any order yields the
// same result.
func (m Money) Add(other Money) Money {
	return Money{Cents: m.Cents + other.Cents}
}

// Sub returns m minus other; the result may be negative.
func (m Money) Sub(other Money) Money {
	return Money{Cents: m.Cents - other.Cents}
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUserID
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(t.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if len(t.Description) > 1000 {
		return errors.New("description too long (max 1000 characters)")
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	return nil
}
