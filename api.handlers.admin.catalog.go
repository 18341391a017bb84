package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// CreateBook godoc
// @Summary      Add a book to the catalog
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        book  body      Book  true  "book"
// @Success      201   {object}  APIResponse
// @Failure      400   {object}  APIError
// @Router       /api/admin/libros [post]
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var book Book
	if err := DecodeRequestBody(r, &book); err != nil {
		api.Fail(w, r, NewInvalidArgumentError("invalid book request body"), "failed to decode book", zap.Error(err))
		return
	}
	book, err := api.catalogService.CreateBook(r.Context(), book)
	if err != nil {
		api.Fail(w, r, err, "failed to create book")
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("book created", zap.Int64("book.id", book.ID))
	api.Respond(w, r, http.StatusCreated, "Book created successfully.", nil, book)
}

func (api *APIHandler) UpdateBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "book id provided is not valid")
		return
	}
	var book Book
	if err = DecodeRequestBody(r, &book); err != nil {
		api.Fail(w, r, NewInvalidArgumentError("invalid book request body"), "failed to decode book", zap.Error(err))
		return
	}
	book, err = api.catalogService.UpdateBook(r.Context(), id, book)
	if err != nil {
		api.Fail(w, r, err, "failed to update book", zap.Int64("book.id", id))
		return
	}
	api.Respond(w, r, http.StatusOK, "Book updated successfully.", nil, book)
}

func (api *APIHandler) DeleteBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "book id provided is not valid")
		return
	}
	if err = api.catalogService.DeleteBook(r.Context(), id); err != nil {
		api.Fail(w, r, err, "failed to delete book", zap.Int64("book.id", id))
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("book deleted", zap.Int64("book.id", id))
	api.Respond(w, r, http.StatusOK, "Book deleted successfully.", nil, EmptyData)
}

func (api *APIHandler) GetCategory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "category id provided is not valid")
		return
	}
	category, err := api.catalogService.GetCategory(r.Context(), id)
	if err != nil {
		api.Fail(w, r, err, "failed to get category", zap.Int64("category.id", id))
		return
	}
	api.Respond(w, r, http.StatusOK, "Category fetched successfully.", nil, category)
}

func (api *APIHandler) CreateCategory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var category Category
	if err := DecodeRequestBody(r, &category); err != nil {
		api.Fail(w, r, NewInvalidArgumentError("invalid category request body"), "failed to decode category", zap.Error(err))
		return
	}
	category, err := api.catalogService.CreateCategory(r.Context(), category)
	if err != nil {
		api.Fail(w, r, err, "failed to create category")
		return
	}
	api.Respond(w, r, http.StatusCreated, "Category created successfully.", nil, category)
}

func (api *APIHandler) UpdateCategory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "category id provided is not valid")
		return
	}
	var category Category
	if err = DecodeRequestBody(r, &category); err != nil {
		api.Fail(w, r, NewInvalidArgumentError("invalid category request body"), "failed to decode category", zap.Error(err))
		return
	}
	category, err = api.catalogService.UpdateCategory(r.Context(), id, category)
	if err != nil {
		api.Fail(w, r, err, "failed to update category", zap.Int64("category.id", id))
		return
	}
	api.Respond(w, r, http.StatusOK, "Category updated successfully.", nil, category)
}

func (api *APIHandler) DeleteCategory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "category id provided is not valid")
		return
	}
	if err = api.catalogService.DeleteCategory(r.Context(), id); err != nil {
		api.Fail(w, r, err, "failed to delete category", zap.Int64("category.id", id))
		return
	}
	api.Respond(w, r, http.StatusOK, "Category deleted successfully.", nil, EmptyData)
}
