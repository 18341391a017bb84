package main

import (
	"context"
	"time"
)

// DateLayout is the calendar date format used by loans.
const DateLayout = "2006-01-02"

type LoanStatus string

const (
	LoanStatusLoaned   LoanStatus = "LOANED"
	LoanStatusFined    LoanStatus = "FINED"
	LoanStatusReturned LoanStatus = "RETURNED"
)

// Loan links a user to a borrowed book copy. User and book hold
// the records as they were at loan time and are refreshed on reads.
type Loan struct {
	ID         int64      `json:"id"`
	User       User       `json:"user"`
	Book       Book       `json:"book"`
	LoanDate   string     `json:"loanDate"`
	DueDate    string     `json:"dueDate"`
	ReturnDate string     `json:"returnDate,omitempty"`
	Status     LoanStatus `json:"status"`
	DaysLate   int        `json:"daysLate"`
	FineAmount int64      `json:"fineAmount"`
}

func (l Loan) Key() int64 {
	return l.ID
}

// IsActive reports whether the loan still needs an action (return or payment).
func (l Loan) IsActive() bool {
	return l.Status != LoanStatusReturned
}

// IsBookReturned reports whether the copy came back to the shelves.
func (l Loan) IsBookReturned() bool {
	return l.ReturnDate != ""
}

// AssessFine sets the days late and the fine amount as of the given day.
// It reports false and leaves the loan untouched when it is not overdue.
func (l *Loan) AssessFine(day string, finePerDay int64) (bool, error) {
	late, err := DaysLate(l.DueDate, day)
	if err != nil || late == 0 {
		return false, err
	}
	l.DaysLate = late
	l.FineAmount = int64(late) * finePerDay
	l.Status = LoanStatusFined
	return true, nil
}

// FormatDate gives the calendar date of t in its own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// AddDays shifts a calendar date by n days.
func AddDays(date string, n int) (string, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, n).Format(DateLayout), nil
}

// DaysBetween counts the whole days from one calendar date to another.
// The result is negative when `to` is before `from`.
func DaysBetween(from, to string) (int, error) {
	f, err := time.Parse(DateLayout, from)
	if err != nil {
		return 0, err
	}
	t, err := time.Parse(DateLayout, to)
	if err != nil {
		return 0, err
	}
	return int(t.Sub(f).Hours() / 24), nil
}

// DaysLate returns how many days `day` is past the due date, zero if not after.
func DaysLate(dueDate, day string) (int, error) {
	n, err := DaysBetween(dueDate, day)
	if err != nil || n < 0 {
		return 0, err
	}
	return n, nil
}

// Loan events kinds, also used as queue ids.
const (
	LoanBorrowedQueue = "loans.borrowed"
	LoanReturnedQueue = "loans.returned"
	LoanFinedQueue    = "loans.fined"
	LoanSettledQueue  = "loans.settled"
)

// LoanEvent records a state change of a loan for the history ledger.
type LoanEvent struct {
	LoanID     int64      `json:"loanId"`
	Kind       string     `json:"kind"`
	Status     LoanStatus `json:"status"`
	BookID     int64      `json:"bookId"`
	Username   string     `json:"username"`
	DaysLate   int        `json:"daysLate"`
	FineAmount int64      `json:"fineAmount"`
	At         string     `json:"at"`
}

// NewLoanEvent builds the event of a loan change happened at t.
func NewLoanEvent(kind string, loan Loan, t time.Time) LoanEvent {
	return LoanEvent{
		LoanID:     loan.ID,
		Kind:       kind,
		Status:     loan.Status,
		BookID:     loan.Book.ID,
		Username:   loan.User.Username,
		DaysLate:   loan.DaysLate,
		FineAmount: loan.FineAmount,
		At:         t.Format(time.RFC3339),
	}
}

// LedgerStorage keeps the append-only history of loans events.
type LedgerStorage interface {
	Append(ctx context.Context, event LoanEvent) error
	History(ctx context.Context, loanID int64) ([]LoanEvent, error)
}
