package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// This file contains mocks definitions needed to perform unit tests.

var nopLogger = zap.NewNop()

// MemoryRecordStore is an in-memory RecordStore.
type MemoryRecordStore[T Record] struct {
	mu      sync.Mutex
	seq     int64
	records map[int64]T
	// Err is returned by every call when set.
	Err error
}

func NewMemoryRecordStore[T Record]() *MemoryRecordStore[T] {
	return &MemoryRecordStore[T]{records: make(map[int64]T)}
}

func (ms *MemoryRecordStore[T]) NextID(_ context.Context) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.Err != nil {
		return 0, ms.Err
	}
	ms.seq++
	return ms.seq, nil
}

func (ms *MemoryRecordStore[T]) Save(_ context.Context, record T) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.Err != nil {
		return ms.Err
	}
	ms.records[record.Key()] = record
	if record.Key() > ms.seq {
		ms.seq = record.Key()
	}
	return nil
}

func (ms *MemoryRecordStore[T]) GetOne(_ context.Context, id int64) (T, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var zero T
	if ms.Err != nil {
		return zero, ms.Err
	}
	record, found := ms.records[id]
	if !found {
		return zero, ErrRecordNotFound
	}
	return record, nil
}

func (ms *MemoryRecordStore[T]) GetAll(_ context.Context) ([]T, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.Err != nil {
		return nil, ms.Err
	}
	records := make([]T, 0, len(ms.records))
	for _, r := range ms.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key() < records[j].Key() })
	return records, nil
}

func (ms *MemoryRecordStore[T]) Delete(_ context.Context, id int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.Err != nil {
		return ms.Err
	}
	if _, found := ms.records[id]; !found {
		return ErrRecordNotFound
	}
	delete(ms.records, id)
	return nil
}

// NewMemoryStorage returns the library collections kept in memory.
func NewMemoryStorage() *Storage {
	return &Storage{
		Books:      NewMemoryRecordStore[Book](),
		Categories: NewMemoryRecordStore[Category](),
		Users:      NewMemoryRecordStore[User](),
		Loans:      NewMemoryRecordStore[Loan](),
	}
}

type MockQueuer struct {
	PushFunc func(ctx context.Context, qid string, event LoanEvent) error
	PopFunc  func(ctx context.Context, qids ...string) (string, LoanEvent, error)
}

// Push mocks the behavior of pushing an event onto a queue.
func (m *MockQueuer) Push(ctx context.Context, qid string, event LoanEvent) error {
	return m.PushFunc(ctx, qid, event)
}

// Pop mocks the behavior of popping an event from the queues.
func (m *MockQueuer) Pop(ctx context.Context, qids ...string) (string, LoanEvent, error) {
	return m.PopFunc(ctx, qids...)
}

// RecordingQueuer keeps the pushed events in memory.
type RecordingQueuer struct {
	mu     sync.Mutex
	Events []LoanEvent
}

func (rq *RecordingQueuer) Push(_ context.Context, _ string, event LoanEvent) error {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	rq.Events = append(rq.Events, event)
	return nil
}

func (rq *RecordingQueuer) Pop(ctx context.Context, _ ...string) (string, LoanEvent, error) {
	<-ctx.Done()
	return "", LoanEvent{}, ctx.Err()
}

// Kinds returns the kinds of the pushed events in order.
func (rq *RecordingQueuer) Kinds() []string {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	kinds := make([]string, 0, len(rq.Events))
	for _, e := range rq.Events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type MockLedger struct {
	AppendFunc  func(ctx context.Context, event LoanEvent) error
	HistoryFunc func(ctx context.Context, loanID int64) ([]LoanEvent, error)
}

// Append mocks the behavior of saving an event into the ledger.
func (m *MockLedger) Append(ctx context.Context, event LoanEvent) error {
	return m.AppendFunc(ctx, event)
}

// History mocks the behavior of loading a loan history from the ledger.
func (m *MockLedger) History(ctx context.Context, loanID int64) ([]LoanEvent, error) {
	return m.HistoryFunc(ctx, loanID)
}

// MockClocker implements a fake Clocker.
type MockClocker struct {
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
func NewMockClocker() *MockClocker {
	return &MockClocker{time.Date(2023, 0o7, 0o2, 0o0, 0o0, 0o0, 0o00000000, time.UTC)}
}

// Now returns an already defined time to be used as mock. This
// equals to `Sun, 02 Jul 2023 00:00:00 UTC` in time.RFC1123 format.
// equals to `2023-07-02 00:00:00 +0000 UTC` in String format.
func (mck *MockClocker) Now() time.Time {
	return mck.MockNow
}

// AddDays moves the mocked time forward by n days.
func (mck *MockClocker) AddDays(n int) {
	mck.MockNow = mck.MockNow.AddDate(0, 0, n)
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
	Valid     bool
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string, valid bool) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id, Valid: valid}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	if prefix == "" {
		return muid.MockedUID
	}
	return prefix + ":" + muid.MockedUID
}

// IsValid mocks IsValid behavior by providing configured status.
func (muid *MockUIDHandler) IsValid(_, _ string) bool {
	return muid.Valid
}

// testConfig returns a valid configuration for the library rules.
func testConfig() *Config {
	return &Config{
		Server:  ServerConfig{AllowedOrigin: "*"},
		Auth:    AuthConfig{TokenSecret: "test-secret", TokenTTL: time.Hour, LoginRate: 1, LoginBurst: 5},
		Library: LibraryConfig{LoanDays: 7, FinePerDay: 5000},
		Uploads: UploadsConfig{Folder: "uploads", MaxSize: 5 << 20},
	}
}

// testEnv groups the real services running on memory storages.
type testEnv struct {
	config  *Config
	clock   *MockClocker
	storage *Storage
	queue   *RecordingQueuer
	ledger  *MockLedger
	tokens  *JWTHandler
	catalog CatalogServiceProvider
	users   UserServiceProvider
	loans   LoanServiceProvider
	api     *APIHandler
}

func newTestEnv() *testEnv {
	env := &testEnv{
		config:  testConfig(),
		clock:   NewMockClocker(),
		storage: NewMemoryStorage(),
		queue:   &RecordingQueuer{},
		ledger: &MockLedger{
			AppendFunc: func(ctx context.Context, event LoanEvent) error { return nil },
			HistoryFunc: func(ctx context.Context, loanID int64) ([]LoanEvent, error) {
				return []LoanEvent{}, nil
			},
		},
	}
	stock := &sync.Mutex{}
	env.tokens = NewJWTHandler(env.config.Auth.TokenSecret, env.config.Auth.TokenTTL, env.clock)
	env.catalog = NewCatalogService(nopLogger, env.storage, stock)
	env.users = NewUserService(nopLogger, env.storage, env.tokens)
	env.loans = NewLoanService(nopLogger, env.config, env.clock, env.storage, env.queue, env.ledger, stock)
	env.api = NewAPIHandler(nopLogger, env.config, &Statistics{started: env.clock.Now()}, env.clock,
		NewMockUIDHandler("abc", true), env.catalog, env.users, env.loans)
	return env
}

// addUser saves a user with a hashed password and returns it without the hash.
func (env *testEnv) addUser(username string, role Role, blocked bool) User {
	hash, err := HashPassword("secret123")
	if err != nil {
		panic(err)
	}
	id, _ := env.storage.Users.NextID(context.Background())
	user := User{
		ID:       id,
		Username: username,
		Password: hash,
		Name:     "Name",
		Surname:  "Surname",
		Email:    username + "@library.test",
		Role:     role,
		Blocked:  blocked,
	}
	if err = env.storage.Users.Save(context.Background(), user); err != nil {
		panic(err)
	}
	return user.Public()
}

func (env *testEnv) addBook(title string, total int) Book {
	id, _ := env.storage.Books.NextID(context.Background())
	book := Book{ID: id, Title: title, Author: "Author", TotalCopies: total, AvailableCopies: total}
	if err := env.storage.Books.Save(context.Background(), book); err != nil {
		panic(err)
	}
	return book
}

func (env *testEnv) token(user User) string {
	token, err := env.tokens.Issue(user.Username, user.Role)
	if err != nil {
		panic(err)
	}
	return token
}
