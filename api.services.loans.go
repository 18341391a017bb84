package main

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// LoanFilter selects a subset of the loans.
type LoanFilter string

const (
	LoanFilterAll    LoanFilter = "all"
	LoanFilterActive LoanFilter = "active"
	LoanFilterFined  LoanFilter = "fined"
)

// LoanSummary counts loans per status.
type LoanSummary struct {
	Total    int `json:"total"`
	Loaned   int `json:"loaned"`
	Fined    int `json:"fined"`
	Returned int `json:"returned"`
	Overdue  int `json:"overdue"`
}

type LoanServiceProvider interface {
	Borrow(ctx context.Context, bookID int64, user User) (Loan, error)
	MyLoans(ctx context.Context, user User) ([]Loan, error)
	ListLoans(ctx context.Context, filter LoanFilter) ([]Loan, error)
	GetLoan(ctx context.Context, id int64) (Loan, error)
	Return(ctx context.Context, id int64) (Loan, error)
	RefreshFines(ctx context.Context) (int, error)
	PayFine(ctx context.Context, id int64) (Loan, error)
	History(ctx context.Context, id int64) ([]LoanEvent, error)
	Summary(ctx context.Context) (LoanSummary, error)
}

type LoanService struct {
	logger  *zap.Logger
	config  *Config
	clock   Clocker
	storage *Storage
	queue   Queuer
	ledger  LedgerStorage
	stock   *sync.Mutex
}

// NewLoanService provides the loans service. All loan state changes and
// book stock updates are done while holding the shared stock mutex.
func NewLoanService(logger *zap.Logger, config *Config, clock Clocker, storage *Storage, queue Queuer, ledger LedgerStorage, stock *sync.Mutex) LoanServiceProvider {
	return &LoanService{
		logger:  logger,
		config:  config,
		clock:   clock,
		storage: storage,
		queue:   queue,
		ledger:  ledger,
		stock:   stock,
	}
}

func (ls *LoanService) today() string {
	return FormatDate(ls.clock.Now())
}

// Borrow lends one copy of the book to the user for the configured loan period.
func (ls *LoanService) Borrow(ctx context.Context, bookID int64, user User) (Loan, error) {
	var loan Loan
	ls.stock.Lock()
	defer ls.stock.Unlock()

	book, err := ls.storage.Books.GetOne(ctx, bookID)
	if err != nil {
		return loan, notFoundAs(err, ErrBookNotFound)
	}
	if book.AvailableCopies <= 0 {
		return loan, ErrNoCopiesAvailable
	}

	today := ls.today()
	dueDate, err := AddDays(today, ls.config.Library.LoanDays)
	if err != nil {
		return loan, fmt.Errorf("service: compute due date: %w", err)
	}
	loanID, err := ls.storage.Loans.NextID(ctx)
	if err != nil {
		return loan, fmt.Errorf("service: allocate loan id: %w", err)
	}

	book.AvailableCopies--
	if err = ls.storage.Books.Save(ctx, book); err != nil {
		return loan, fmt.Errorf("service: save book: %w", err)
	}
	loan = Loan{
		ID:       loanID,
		User:     user.Public(),
		Book:     book,
		LoanDate: today,
		DueDate:  dueDate,
		Status:   LoanStatusLoaned,
	}
	if err = ls.storage.Loans.Save(ctx, loan); err != nil {
		book.AvailableCopies++
		if rerr := ls.storage.Books.Save(ctx, book); rerr != nil {
			ls.logger.Error("service: failed to restore book stock", zap.Int64("book.id", book.ID), zap.Error(rerr))
		}
		return loan, fmt.Errorf("service: save loan: %w", err)
	}
	ls.publish(ctx, LoanBorrowedQueue, loan)
	return loan, nil
}

// MyLoans returns the loans of the user, most recent first.
func (ls *LoanService) MyLoans(ctx context.Context, user User) ([]Loan, error) {
	loans, err := ls.loadLoans(ctx)
	if err != nil {
		return nil, err
	}
	mine := []Loan{}
	for _, loan := range loans {
		if loan.User.ID == user.ID {
			mine = append(mine, loan)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		if mine[i].LoanDate != mine[j].LoanDate {
			return mine[i].LoanDate > mine[j].LoanDate
		}
		return mine[i].ID > mine[j].ID
	})
	return mine, nil
}

func (ls *LoanService) ListLoans(ctx context.Context, filter LoanFilter) ([]Loan, error) {
	loans, err := ls.loadLoans(ctx)
	if err != nil {
		return nil, err
	}
	if filter == LoanFilterAll {
		return loans, nil
	}
	selected := []Loan{}
	for _, loan := range loans {
		switch {
		case filter == LoanFilterActive && loan.IsActive():
			selected = append(selected, loan)
		case filter == LoanFilterFined && loan.Status == LoanStatusFined:
			selected = append(selected, loan)
		}
	}
	return selected, nil
}

func (ls *LoanService) GetLoan(ctx context.Context, id int64) (Loan, error) {
	loan, err := ls.storage.Loans.GetOne(ctx, id)
	if err != nil {
		return loan, notFoundAs(err, ErrLoanNotFound)
	}
	return ls.refresh(ctx, loan), nil
}

// Return registers the copy back. A late return fines the loan. Returning
// an already closed loan is a no-op, so is returning a fined loan twice.
func (ls *LoanService) Return(ctx context.Context, id int64) (Loan, error) {
	ls.stock.Lock()
	defer ls.stock.Unlock()

	loan, err := ls.storage.Loans.GetOne(ctx, id)
	if err != nil {
		return loan, notFoundAs(err, ErrLoanNotFound)
	}
	if loan.Status == LoanStatusReturned || loan.IsBookReturned() {
		return ls.refresh(ctx, loan), nil
	}

	today := ls.today()
	loan.ReturnDate = today
	late, err := loan.AssessFine(today, ls.config.Library.FinePerDay)
	if err != nil {
		return loan, fmt.Errorf("service: assess fine: %w", err)
	}
	if !late {
		loan.Status = LoanStatusReturned
	}
	if err = ls.restock(ctx, &loan); err != nil {
		return loan, err
	}
	if err = ls.storage.Loans.Save(ctx, loan); err != nil {
		return loan, fmt.Errorf("service: save loan: %w", err)
	}
	ls.publish(ctx, LoanReturnedQueue, loan)
	return loan, nil
}

// RefreshFines fines every overdue loan still out as of today and
// returns how many loans were updated.
func (ls *LoanService) RefreshFines(ctx context.Context) (int, error) {
	ls.stock.Lock()
	defer ls.stock.Unlock()

	loans, err := ls.storage.Loans.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("service: list loans: %w", err)
	}
	today := ls.today()
	updated := 0
	for _, loan := range loans {
		if !loan.IsActive() || loan.IsBookReturned() {
			continue
		}
		previous := loan
		late, err := loan.AssessFine(today, ls.config.Library.FinePerDay)
		if err != nil {
			ls.logger.Error("service: failed to assess fine", zap.Int64("loan.id", loan.ID), zap.Error(err))
			continue
		}
		if !late || (previous.Status == loan.Status && previous.DaysLate == loan.DaysLate) {
			continue
		}
		if err = ls.storage.Loans.Save(ctx, loan); err != nil {
			return updated, fmt.Errorf("service: save loan: %w", err)
		}
		ls.publish(ctx, LoanFinedQueue, loan)
		updated++
	}
	return updated, nil
}

// PayFine settles a fined loan. The fine amount is kept for the records. A
// copy not returned yet is considered handed back with the payment.
func (ls *LoanService) PayFine(ctx context.Context, id int64) (Loan, error) {
	ls.stock.Lock()
	defer ls.stock.Unlock()

	loan, err := ls.storage.Loans.GetOne(ctx, id)
	if err != nil {
		return loan, notFoundAs(err, ErrLoanNotFound)
	}
	if loan.Status != LoanStatusFined {
		return loan, ErrNoPendingFine
	}
	if !loan.IsBookReturned() {
		loan.ReturnDate = ls.today()
		if err = ls.restock(ctx, &loan); err != nil {
			return loan, err
		}
	}
	loan.Status = LoanStatusReturned
	if err = ls.storage.Loans.Save(ctx, loan); err != nil {
		return loan, fmt.Errorf("service: save loan: %w", err)
	}
	ls.publish(ctx, LoanSettledQueue, loan)
	return loan, nil
}

// History returns the recorded events of a loan.
func (ls *LoanService) History(ctx context.Context, id int64) ([]LoanEvent, error) {
	if _, err := ls.storage.Loans.GetOne(ctx, id); err != nil {
		return nil, notFoundAs(err, ErrLoanNotFound)
	}
	events, err := ls.ledger.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service: loan history: %w", err)
	}
	return events, nil
}

// Summary counts the loans per status. Overdue counts loans still out past due.
func (ls *LoanService) Summary(ctx context.Context) (LoanSummary, error) {
	var summary LoanSummary
	loans, err := ls.storage.Loans.GetAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("service: list loans: %w", err)
	}
	today := ls.today()
	for _, loan := range loans {
		summary.Total++
		switch loan.Status {
		case LoanStatusLoaned:
			summary.Loaned++
		case LoanStatusFined:
			summary.Fined++
		case LoanStatusReturned:
			summary.Returned++
		}
		if !loan.IsBookReturned() && loan.DueDate < today {
			summary.Overdue++
		}
	}
	return summary, nil
}

// restock puts the copy of the loan back on the shelves and refreshes its snapshot.
func (ls *LoanService) restock(ctx context.Context, loan *Loan) error {
	book, err := ls.storage.Books.GetOne(ctx, loan.Book.ID)
	if err == ErrRecordNotFound {
		ls.logger.Warn("service: returned copy of a deleted book", zap.Int64("loan.id", loan.ID), zap.Int64("book.id", loan.Book.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("service: get book: %w", err)
	}
	if book.AvailableCopies < book.TotalCopies {
		book.AvailableCopies++
	}
	if err = ls.storage.Books.Save(ctx, book); err != nil {
		return fmt.Errorf("service: save book: %w", err)
	}
	loan.Book = book
	return nil
}

// loadLoans returns all loans with up to date users and books.
func (ls *LoanService) loadLoans(ctx context.Context) ([]Loan, error) {
	loans, err := ls.storage.Loans.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list loans: %w", err)
	}
	books, err := ls.storage.Books.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list books: %w", err)
	}
	users, err := ls.storage.Users.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list users: %w", err)
	}
	booksByID := make(map[int64]Book, len(books))
	for _, b := range books {
		booksByID[b.ID] = b
	}
	usersByID := make(map[int64]User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u.Public()
	}
	for i := range loans {
		if b, ok := booksByID[loans[i].Book.ID]; ok {
			loans[i].Book = b
		}
		if u, ok := usersByID[loans[i].User.ID]; ok {
			loans[i].User = u
		}
	}
	return loans, nil
}

// refresh swaps the snapshots of a single loan with the current records when they exist.
func (ls *LoanService) refresh(ctx context.Context, loan Loan) Loan {
	if b, err := ls.storage.Books.GetOne(ctx, loan.Book.ID); err == nil {
		loan.Book = b
	}
	if u, err := ls.storage.Users.GetOne(ctx, loan.User.ID); err == nil {
		loan.User = u.Public()
	}
	return loan
}

// publish sends the loan event to the ledger queue. Failures are only logged
// since the loan is already saved.
func (ls *LoanService) publish(ctx context.Context, qid string, loan Loan) {
	LoanOperationsTotal.WithLabelValues(qid).Inc()
	if err := ls.queue.Push(ctx, qid, NewLoanEvent(qid, loan, ls.clock.Now())); err != nil {
		ls.logger.Error("service: failed to push loan event to queue", zap.String("qid", qid), zap.Int64("loan.id", loan.ID), zap.Error(err))
	}
}
