package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestBoltLedger returns a new ledger in a temporary path.
func newTestBoltLedger() (*boltLedgerStorage, error) {
	f, err := os.CreateTemp("", "tmp.bolt.db-")
	if err != nil {
		return nil, err
	}
	f.Close()
	testConfig := &Config{
		BoltDB: BoltDBConfig{
			FilePath:   f.Name(),
			Timeout:    5 * time.Second,
			BucketName: "test.ledger",
		},
	}

	client, err := GetBoltDBClient(testConfig)
	if err != nil {
		return nil, err
	}
	return NewBoltLedgerStorage(zap.NewNop(), &testConfig.BoltDB, client).(*boltLedgerStorage), nil
}

// closeTestBoltLedger closes the temporary ledger and removes the underlying data file.
func (bs *boltLedgerStorage) closeTestBoltLedger() error {
	defer os.Remove(bs.config.FilePath)
	return bs.Close()
}

// Ensure events are kept per loan and in insertion order.
func TestBoltLedger_AppendAndHistory(t *testing.T) {
	bs, err := newTestBoltLedger()
	require.NoError(t, err, "failed in creating a test bolt ledger")
	defer bs.closeTestBoltLedger()
	ctx := context.TODO()

	loan := Loan{ID: 1, User: User{Username: "ana"}, Book: Book{ID: 7}, Status: LoanStatusLoaned}
	at := NewMockClocker().Now()
	require.NoError(t, bs.Append(ctx, NewLoanEvent(LoanBorrowedQueue, loan, at)))
	loan.Status, loan.DaysLate, loan.FineAmount = LoanStatusFined, 2, 10000
	require.NoError(t, bs.Append(ctx, NewLoanEvent(LoanReturnedQueue, loan, at.AddDate(0, 0, 9))))
	require.NoError(t, bs.Append(ctx, NewLoanEvent(LoanBorrowedQueue, Loan{ID: 2, Book: Book{ID: 8}}, at)))

	events, err := bs.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, LoanEvent{
		LoanID: 1, Kind: LoanBorrowedQueue, Status: LoanStatusLoaned, BookID: 7, Username: "ana",
		At: "2023-07-02T00:00:00Z",
	}, events[0])
	assert.Equal(t, LoanReturnedQueue, events[1].Kind)
	assert.Equal(t, int64(10000), events[1].FineAmount)
	assert.Equal(t, "2023-07-11T00:00:00Z", events[1].At)

	events, err = bs.History(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

// Ensure an unknown loan gives an empty history.
func TestBoltLedger_UnknownLoan(t *testing.T) {
	bs, err := newTestBoltLedger()
	require.NoError(t, err, "failed in creating a test bolt ledger")
	defer bs.closeTestBoltLedger()

	events, err := bs.History(context.TODO(), 42)
	assert.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

// Ensure the consumer moves popped events into the ledger and ignores unknown queues.
func TestLedgerConsumer(t *testing.T) {
	bs, err := newTestBoltLedger()
	require.NoError(t, err, "failed in creating a test bolt ledger")
	defer bs.closeTestBoltLedger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	popped := []struct {
		qid   string
		event LoanEvent
	}{
		{LoanBorrowedQueue, LoanEvent{LoanID: 1, Kind: LoanBorrowedQueue}},
		{"books.unknown", LoanEvent{LoanID: 1, Kind: "unknown"}},
		{LoanSettledQueue, LoanEvent{LoanID: 1, Kind: LoanSettledQueue}},
	}
	calls := 0
	queue := &MockQueuer{
		PopFunc: func(ctx context.Context, qids ...string) (string, LoanEvent, error) {
			if calls == len(popped) {
				cancel()
				<-ctx.Done()
				return "", LoanEvent{}, ctx.Err()
			}
			p := popped[calls]
			calls++
			return p.qid, p.event, nil
		},
	}

	err = NewLedgerConsumer(zap.NewNop(), queue, bs).Consume(ctx, LoanQueues...)
	assert.NoError(t, err)

	events, err := bs.History(context.TODO(), 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, LoanBorrowedQueue, events[0].Kind)
	assert.Equal(t, LoanSettledQueue, events[1].Kind)
}

// Ensure the refresher fines overdue loans on its own and stops with ctx.
func TestFinesRefresher(t *testing.T) {
	env := newTestEnv()
	user := env.addUser("ana", RoleUser, false)
	book := env.addBook("Dune", 1)
	loan, err := env.loans.Borrow(context.Background(), book.ID, user)
	require.NoError(t, err)
	env.clock.AddDays(9)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewFinesRefresher(zap.NewNop(), env.loans, time.Millisecond).Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return len(env.queue.Kinds()) == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	got, err := env.loans.GetLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, LoanStatusFined, got.Status)
	assert.Equal(t, 2, got.DaysLate)
	assert.Equal(t, []string{LoanBorrowedQueue, LoanFinedQueue}, env.queue.Kinds())
}
