package main

import "context"

// Record is any entity persisted by a RecordStore.
type Record interface {
	Key() int64
}

// RecordStore defines possible operations on a collection of records.
type RecordStore[T Record] interface {
	NextID(ctx context.Context) (int64, error)
	Save(ctx context.Context, record T) error
	GetOne(ctx context.Context, id int64) (T, error)
	GetAll(ctx context.Context) ([]T, error)
	Delete(ctx context.Context, id int64) error
}

// Storage groups the collections of the library.
type Storage struct {
	Books      RecordStore[Book]
	Categories RecordStore[Category]
	Users      RecordStore[User]
	Loans      RecordStore[Loan]
}
