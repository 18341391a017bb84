package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type CatalogServiceProvider interface {
	ListBooks(ctx context.Context) ([]Book, error)
	GetBook(ctx context.Context, id int64) (Book, error)
	CreateBook(ctx context.Context, book Book) (Book, error)
	UpdateBook(ctx context.Context, id int64, book Book) (Book, error)
	DeleteBook(ctx context.Context, id int64) error
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
	CreateCategory(ctx context.Context, category Category) (Category, error)
	UpdateCategory(ctx context.Context, id int64, category Category) (Category, error)
	DeleteCategory(ctx context.Context, id int64) error
}

type CatalogService struct {
	logger  *zap.Logger
	storage *Storage
	stock   *sync.Mutex

	// mu serializes the category writes behind the name uniqueness check.
	mu sync.Mutex
}

// NewCatalogService provides the books and categories service. The stock
// mutex is shared with the loans service since both update book copies.
func NewCatalogService(logger *zap.Logger, storage *Storage, stock *sync.Mutex) CatalogServiceProvider {
	return &CatalogService{
		logger:  logger,
		storage: storage,
		stock:   stock,
	}
}

// ListBooks returns all books with their current category.
func (cs *CatalogService) ListBooks(ctx context.Context) ([]Book, error) {
	books, err := cs.storage.Books.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list books: %w", err)
	}
	categories, err := cs.categoriesByID(ctx)
	if err != nil {
		return nil, err
	}
	for i := range books {
		books[i].Category = refreshCategory(books[i].Category, categories)
	}
	return books, nil
}

func (cs *CatalogService) GetBook(ctx context.Context, id int64) (Book, error) {
	book, err := cs.storage.Books.GetOne(ctx, id)
	if err != nil {
		return book, notFoundAs(err, ErrBookNotFound)
	}
	if book.Category != nil {
		category, err := cs.storage.Categories.GetOne(ctx, book.Category.ID)
		switch {
		case err == nil:
			book.Category = &category
		case err == ErrRecordNotFound:
			book.Category = nil
		default:
			return book, fmt.Errorf("service: get book category: %w", err)
		}
	}
	return book, nil
}

// CreateBook saves a new book. No available copies means all copies are on the shelves.
func (cs *CatalogService) CreateBook(ctx context.Context, book Book) (Book, error) {
	SanitizeBook(&book)
	if book.AvailableCopies == 0 {
		book.AvailableCopies = book.TotalCopies
	}
	if err := ValidateBook(&book); err != nil {
		return book, err
	}
	category, err := cs.resolveCategory(ctx, book.Category)
	if err != nil {
		return book, err
	}
	book.Category = category

	book.ID, err = cs.storage.Books.NextID(ctx)
	if err != nil {
		return book, fmt.Errorf("service: allocate book id: %w", err)
	}
	if err = cs.storage.Books.Save(ctx, book); err != nil {
		return book, fmt.Errorf("service: save book: %w", err)
	}
	return book, nil
}

func (cs *CatalogService) UpdateBook(ctx context.Context, id int64, book Book) (Book, error) {
	SanitizeBook(&book)
	if err := ValidateBook(&book); err != nil {
		return book, err
	}
	category, err := cs.resolveCategory(ctx, book.Category)
	if err != nil {
		return book, err
	}

	cs.stock.Lock()
	defer cs.stock.Unlock()
	if _, err = cs.storage.Books.GetOne(ctx, id); err != nil {
		return book, notFoundAs(err, ErrBookNotFound)
	}
	book.ID = id
	book.Category = category
	if err = cs.storage.Books.Save(ctx, book); err != nil {
		return book, fmt.Errorf("service: save book: %w", err)
	}
	return book, nil
}

// DeleteBook removes a book which has no active loans.
func (cs *CatalogService) DeleteBook(ctx context.Context, id int64) error {
	cs.stock.Lock()
	defer cs.stock.Unlock()
	if _, err := cs.storage.Books.GetOne(ctx, id); err != nil {
		return notFoundAs(err, ErrBookNotFound)
	}
	loans, err := cs.storage.Loans.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("service: list loans: %w", err)
	}
	active := 0
	for _, loan := range loans {
		if loan.Book.ID == id && loan.IsActive() {
			active++
		}
	}
	if active > 0 {
		return NewBookHasLoansError(active)
	}
	return notFoundAs(cs.storage.Books.Delete(ctx, id), ErrBookNotFound)
}

func (cs *CatalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := cs.storage.Categories.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list categories: %w", err)
	}
	return categories, nil
}

func (cs *CatalogService) GetCategory(ctx context.Context, id int64) (Category, error) {
	category, err := cs.storage.Categories.GetOne(ctx, id)
	return category, notFoundAs(err, ErrCategoryNotFound)
}

func (cs *CatalogService) CreateCategory(ctx context.Context, category Category) (Category, error) {
	if err := ValidateCategory(&category); err != nil {
		return category, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if err := cs.ensureUniqueCategory(ctx, 0, category.Name); err != nil {
		return category, err
	}
	id, err := cs.storage.Categories.NextID(ctx)
	if err != nil {
		return category, fmt.Errorf("service: allocate category id: %w", err)
	}
	category.ID = id
	if err = cs.storage.Categories.Save(ctx, category); err != nil {
		return category, fmt.Errorf("service: save category: %w", err)
	}
	return category, nil
}

func (cs *CatalogService) UpdateCategory(ctx context.Context, id int64, category Category) (Category, error) {
	if err := ValidateCategory(&category); err != nil {
		return category, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, err := cs.storage.Categories.GetOne(ctx, id); err != nil {
		return category, notFoundAs(err, ErrCategoryNotFound)
	}
	if err := cs.ensureUniqueCategory(ctx, id, category.Name); err != nil {
		return category, err
	}
	category.ID = id
	if err := cs.storage.Categories.Save(ctx, category); err != nil {
		return category, fmt.Errorf("service: save category: %w", err)
	}
	return category, nil
}

// DeleteCategory removes a category no book refers to.
func (cs *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, err := cs.storage.Categories.GetOne(ctx, id); err != nil {
		return notFoundAs(err, ErrCategoryNotFound)
	}
	books, err := cs.storage.Books.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("service: list books: %w", err)
	}
	for _, book := range books {
		if book.Category != nil && book.Category.ID == id {
			return NewInvalidStateError("category cannot be deleted: it is used by one or more books")
		}
	}
	return notFoundAs(cs.storage.Categories.Delete(ctx, id), ErrCategoryNotFound)
}

// resolveCategory loads the referenced category. A nil or zero id reference means no category.
func (cs *CatalogService) resolveCategory(ctx context.Context, ref *Category) (*Category, error) {
	if ref == nil || ref.ID == 0 {
		return nil, nil
	}
	category, err := cs.storage.Categories.GetOne(ctx, ref.ID)
	if err == ErrRecordNotFound {
		return nil, NewInvalidArgumentError(fmt.Sprintf("category not found with id: %d", ref.ID))
	}
	if err != nil {
		return nil, fmt.Errorf("service: get category: %w", err)
	}
	return &category, nil
}

func (cs *CatalogService) ensureUniqueCategory(ctx context.Context, id int64, name string) error {
	categories, err := cs.storage.Categories.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("service: list categories: %w", err)
	}
	for _, c := range categories {
		if c.ID != id && strings.EqualFold(c.Name, name) {
			return NewInvalidArgumentError("category already exists: " + name)
		}
	}
	return nil
}

func (cs *CatalogService) categoriesByID(ctx context.Context) (map[int64]Category, error) {
	categories, err := cs.storage.Categories.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: list categories: %w", err)
	}
	m := make(map[int64]Category, len(categories))
	for _, c := range categories {
		m[c.ID] = c
	}
	return m, nil
}

// refreshCategory swaps a stored category snapshot with its current
// version, or drops it when the category no longer exists.
func refreshCategory(ref *Category, categories map[int64]Category) *Category {
	if ref == nil {
		return nil
	}
	c, ok := categories[ref.ID]
	if !ok {
		return nil
	}
	return &c
}
