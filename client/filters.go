package client

import (
	"math"
	"strings"
	"time"
)

// DateLayout is the layout of loan dates.
const DateLayout = "2006-01-02"

// Availability narrows a book listing on its stock.
type Availability string

const (
	AvailabilityAll         Availability = ""
	AvailabilityAvailable   Availability = "AVAILABLE"
	AvailabilityUnavailable Availability = "UNAVAILABLE"
)

// BookFilter selects books on the client side. Zero values match everything.
type BookFilter struct {
	Query        string
	CategoryID   int64
	Availability Availability
}

func (f BookFilter) match(book Book, query string) bool {
	if query != "" &&
		!strings.Contains(strings.ToLower(book.Title), query) &&
		!strings.Contains(strings.ToLower(book.Author), query) {
		return false
	}
	if f.CategoryID != 0 && (book.Category == nil || book.Category.ID != f.CategoryID) {
		return false
	}
	switch f.Availability {
	case AvailabilityAvailable:
		return book.AvailableCopies > 0
	case AvailabilityUnavailable:
		return book.AvailableCopies == 0
	}
	return true
}

// FilterBooks keeps the books matching f in their original order.
// The query is trimmed and compared case-insensitively with title and author.
func FilterBooks(books []Book, f BookFilter) []Book {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]Book, 0, len(books))
	for _, b := range books {
		if f.match(b, query) {
			out = append(out, b)
		}
	}
	return out
}

// FilterLoans keeps the loans with the given status. An empty status keeps all.
func FilterLoans(loans []Loan, status LoanStatus) []Loan {
	out := make([]Loan, 0, len(loans))
	for _, l := range loans {
		if status == "" || l.Status == status {
			out = append(out, l)
		}
	}
	return out
}

func CountByStatus(loans []Loan) map[LoanStatus]int {
	counts := map[LoanStatus]int{
		LoanStatusLoaned:   0,
		LoanStatusFined:    0,
		LoanStatusReturned: 0,
	}
	for _, l := range loans {
		counts[l.Status]++
	}
	return counts
}

// parseDate reads a loan date as midnight in the location of now.
func parseDate(date string, now time.Time) (time.Time, error) {
	return time.ParseInLocation(DateLayout, date, now.Location())
}

// DaysElapsed returns the whole days since loanDate, rounded down.
func DaysElapsed(loanDate string, now time.Time) (int, error) {
	d, err := parseDate(loanDate, now)
	if err != nil {
		return 0, err
	}
	diff := now.Sub(d)
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour)), nil
}

// DaysRemaining returns the days left until dueDate, rounded up.
// It is negative once the due date has passed.
func DaysRemaining(dueDate string, now time.Time) (int, error) {
	d, err := parseDate(dueDate, now)
	if err != nil {
		return 0, err
	}
	return int(math.Ceil(d.Sub(now).Hours() / 24)), nil
}

func IsOverdue(dueDate string, now time.Time) (bool, error) {
	days, err := DaysRemaining(dueDate, now)
	if err != nil {
		return false, err
	}
	return days < 0, nil
}
