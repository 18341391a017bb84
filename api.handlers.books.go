package main

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// ListBooks godoc
// @Summary      List the books of the catalog
// @Tags         books
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  APIResponse
// @Failure      401  {object}  APIError
// @Router       /api/libros [get]
//
//nolint:bodyclose
func (api *APIHandler) ListBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Now().Add(api.longWriteTimeout())); err != nil {
		api.GetLoggerFromContext(r.Context()).Debug("http: failed to update the write deadline", zap.Error(err))
	}

	books, err := api.catalogService.ListBooks(r.Context())
	if err != nil {
		api.Fail(w, r, err, "failed to list books")
		return
	}
	total := len(books)
	api.Respond(w, r, http.StatusOK, "All books fetched successfully.", &total, books)
}

// GetBook godoc
// @Summary      Get a book by id
// @Tags         books
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "book id"
// @Success      200  {object}  APIResponse
// @Failure      404  {object}  APIError
// @Router       /api/libros/{id} [get]
func (api *APIHandler) GetBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "book id provided is not valid")
		return
	}
	book, err := api.catalogService.GetBook(r.Context(), id)
	if err != nil {
		api.Fail(w, r, err, "failed to get book", zap.Int64("book.id", id))
		return
	}
	api.Respond(w, r, http.StatusOK, "Book fetched successfully.", nil, book)
}

// BorrowBook godoc
// @Summary      Borrow one copy of a book
// @Tags         loans
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "book id"
// @Success      201  {object}  APIResponse
// @Failure      400  {object}  APIError
// @Failure      403  {object}  APIError
// @Router       /api/libros/{id}/prestar [post]
func (api *APIHandler) BorrowBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	user, ok := GetAuthUserFromContext(r.Context())
	if !ok {
		api.Fail(w, r, ErrUnauthenticated, "no authenticated user")
		return
	}
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "book id provided is not valid")
		return
	}
	loan, err := api.loanService.Borrow(r.Context(), id, user)
	if err != nil {
		api.Fail(w, r, err, "failed to borrow book", zap.Int64("book.id", id))
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("book borrowed", zap.Int64("book.id", id), zap.Int64("loan.id", loan.ID), zap.String("loan.due", loan.DueDate))
	api.Respond(w, r, http.StatusCreated, "Book borrowed successfully.", nil, loan)
}

// MyLoans returns the loans of the authenticated user, most recent first.
func (api *APIHandler) MyLoans(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	user, ok := GetAuthUserFromContext(r.Context())
	if !ok {
		api.Fail(w, r, ErrUnauthenticated, "no authenticated user")
		return
	}
	loans, err := api.loanService.MyLoans(r.Context(), user)
	if err != nil {
		api.Fail(w, r, err, "failed to list user loans")
		return
	}
	total := len(loans)
	api.Respond(w, r, http.StatusOK, "User loans fetched successfully.", &total, loans)
}

func (api *APIHandler) ListCategories(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	categories, err := api.catalogService.ListCategories(r.Context())
	if err != nil {
		api.Fail(w, r, err, "failed to list categories")
		return
	}
	total := len(categories)
	api.Respond(w, r, http.StatusOK, "All categories fetched successfully.", &total, categories)
}

func (api *APIHandler) longWriteTimeout() time.Duration {
	if api.config == nil || api.config.Server.LongRequestWriteTimeout <= 0 {
		return 30 * time.Second
	}
	return api.config.Server.LongRequestWriteTimeout
}
