package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookIDs(books []Book) []int64 {
	ids := make([]int64, 0, len(books))
	for _, b := range books {
		ids = append(ids, b.ID)
	}
	return ids
}

//nolint:funlen
func TestFilterBooks(t *testing.T) {
	scifi := &Category{ID: 1, Name: "Sci-Fi"}
	books := []Book{
		{ID: 1, Title: "Dune", Author: "Frank Herbert", AvailableCopies: 2, Category: scifi},
		{ID: 2, Title: "Children of Dune", Author: "Frank Herbert", AvailableCopies: 0, Category: scifi},
		{ID: 3, Title: "Hyperion", Author: "Dan Simmons", AvailableCopies: 1, Category: scifi},
		{ID: 4, Title: "Poemas", Author: "Pablo Neruda", AvailableCopies: 0},
		{ID: 5, Title: "Ficciones", Author: "Jorge Luis Borges", AvailableCopies: 3, Category: &Category{ID: 2, Name: "Stories"}},
	}

	testCases := []struct {
		name   string
		filter BookFilter
		want   []int64
	}{
		{"no filter", BookFilter{}, []int64{1, 2, 3, 4, 5}},
		{"title query", BookFilter{Query: "dune"}, []int64{1, 2}},
		{"author query is trimmed and case insensitive", BookFilter{Query: "  NERUDA "}, []int64{4}},
		{"blank query", BookFilter{Query: "   "}, []int64{1, 2, 3, 4, 5}},
		{"category", BookFilter{CategoryID: 1}, []int64{1, 2, 3}},
		{"category skips uncategorized books", BookFilter{CategoryID: 2}, []int64{5}},
		{"available", BookFilter{Availability: AvailabilityAvailable}, []int64{1, 3, 5}},
		{"unavailable", BookFilter{Availability: AvailabilityUnavailable}, []int64{2, 4}},
		{"combined", BookFilter{Query: "herbert", CategoryID: 1, Availability: AvailabilityAvailable}, []int64{1}},
		{"no match", BookFilter{Query: "tolkien"}, []int64{}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, bookIDs(FilterBooks(books, tc.filter)))
		})
	}
}

func TestFilterLoans(t *testing.T) {
	loans := []Loan{
		{ID: 1, Status: LoanStatusLoaned},
		{ID: 2, Status: LoanStatusFined},
		{ID: 3, Status: LoanStatusReturned},
		{ID: 4, Status: LoanStatusFined},
	}
	assert.Len(t, FilterLoans(loans, ""), 4)
	fined := FilterLoans(loans, LoanStatusFined)
	require.Len(t, fined, 2)
	assert.Equal(t, int64(2), fined[0].ID)
	assert.Equal(t, int64(4), fined[1].ID)
	assert.Empty(t, FilterLoans(nil, LoanStatusLoaned))

	assert.Equal(t, map[LoanStatus]int{
		LoanStatusLoaned:   1,
		LoanStatusFined:    2,
		LoanStatusReturned: 1,
	}, CountByStatus(loans))
	assert.Equal(t, 0, CountByStatus(nil)[LoanStatusFined])
}

func TestLoanDays(t *testing.T) {
	now := time.Date(2023, 7, 11, 10, 30, 0, 0, time.UTC)

	elapsed, err := DaysElapsed("2023-07-02", now)
	require.NoError(t, err)
	assert.Equal(t, 9, elapsed)

	testCases := []struct {
		due       string
		remaining int
		overdue   bool
	}{
		{"2023-07-16", 5, false},
		{"2023-07-12", 1, false},
		{"2023-07-11", 0, false},
		{"2023-07-10", -1, true},
		{"2023-07-02", -9, true},
	}
	for _, tc := range testCases {
		t.Run(tc.due, func(t *testing.T) {
			remaining, err := DaysRemaining(tc.due, now)
			require.NoError(t, err)
			assert.Equal(t, tc.remaining, remaining)
			overdue, err := IsOverdue(tc.due, now)
			require.NoError(t, err)
			assert.Equal(t, tc.overdue, overdue)
		})
	}

	_, err = DaysRemaining("11/07/2023", now)
	assert.Error(t, err)
	_, err = IsOverdue("", now)
	assert.Error(t, err)
	_, err = DaysElapsed("x", now)
	assert.Error(t, err)
}
