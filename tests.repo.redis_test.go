package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startRedisDockerContainer runs a disposable redis server. The
// test is skipped when no docker daemon can be reached.
func startRedisDockerContainer(t *testing.T) (string, func()) {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("Failed to start Dockertest: %+v", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Skipf("Could not connect to Docker: %+v", err)
	}

	resource, err := pool.Run("redis", "7.0.10-alpine", nil)
	if err != nil {
		t.Fatalf("Failed to start redis: %+v", err)
	}

	// build address the container is listening on
	addr := net.JoinHostPort("localhost", resource.GetPort("6379/tcp"))

	// ensure to wait for the container to be ready
	err = pool.Retry(func() error {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		return client.Ping(context.Background()).Err()
	})
	if err != nil {
		t.Fatalf("Failed to ping Redis: %+v", err)
	}

	destroyFunc := func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("Failed to purge resource: %+v", err)
		}
	}

	return addr, destroyFunc
}

//nolint:funlen
func TestRedisStore(t *testing.T) {
	addr, destroyFunc := startRedisDockerContainer(t)
	defer destroyFunc()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	storage := NewRedisStorage(zap.NewNop(), client)

	t.Run("Allocate Ids Per Collection", func(t *testing.T) {
		id, err := storage.Books.NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), id)
		id, err = storage.Books.NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), id)
		id, err = storage.Loans.NextID(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), id)
	})

	testBook := Book{ID: 2, Title: "Redis test book", Author: "Jerome Amon", TotalCopies: 2, AvailableCopies: 1, Category: &Category{ID: 1, Name: "Tech"}}

	t.Run("Save And Get Book", func(t *testing.T) {
		require.NoError(t, storage.Books.Save(ctx, testBook))
		book, err := storage.Books.GetOne(ctx, testBook.ID)
		require.NoError(t, err)
		assert.Equal(t, testBook, book)
	})

	t.Run("Get NonExistent Book", func(t *testing.T) {
		_, err := storage.Books.GetOne(ctx, 99)
		assert.Equal(t, ErrRecordNotFound, err)
	})

	t.Run("Get All Books Ordered", func(t *testing.T) {
		require.NoError(t, storage.Books.Save(ctx, Book{ID: 1, Title: "First"}))
		books, err := storage.Books.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, books, 2)
		assert.Equal(t, int64(1), books[0].ID)
		assert.Equal(t, int64(2), books[1].ID)
	})

	t.Run("Delete Book", func(t *testing.T) {
		require.NoError(t, storage.Books.Delete(ctx, 1))
		assert.Equal(t, ErrRecordNotFound, storage.Books.Delete(ctx, 1))
	})

	t.Run("Save Loan Keeps Snapshots", func(t *testing.T) {
		loan := Loan{ID: 1, User: User{ID: 3, Username: "ana"}, Book: testBook, LoanDate: "2023-07-02", DueDate: "2023-07-09", Status: LoanStatusLoaned}
		require.NoError(t, storage.Loans.Save(ctx, loan))
		got, err := storage.Loans.GetOne(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, loan, got)
	})

	t.Run("Empty Collection", func(t *testing.T) {
		users, err := storage.Users.GetAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("Queue Push And Pop", func(t *testing.T) {
		queue := NewRedisQueue(client)
		event := LoanEvent{LoanID: 1, Kind: LoanReturnedQueue, Status: LoanStatusFined, DaysLate: 1, FineAmount: 5000}
		require.NoError(t, queue.Push(ctx, LoanReturnedQueue, event))

		popCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		qid, got, err := queue.Pop(popCtx, LoanQueues...)
		require.NoError(t, err)
		assert.Equal(t, LoanReturnedQueue, qid)
		assert.Equal(t, event, got)
	})
}
