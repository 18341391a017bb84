package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// SetupLibraryRoutes injects the catalog, loans, accounts and uploads endpoints.
func (api *APIHandler) SetupLibraryRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.RedirectTrailingSlash = true
	router.GET("/", m.public(api.Index))
	router.GET("/status", m.public(api.Status))

	router.POST("/api/auth/login", m.login(api.Login))
	router.POST("/api/auth/register", m.public(api.Register))
	router.POST("/api/auth/create-admin", m.public(api.CreateAdmin))

	router.GET("/api/libros", m.auth(api.ListBooks))
	router.GET("/api/libros/:id", m.auth(BySegment(api.GetBook, map[string]httprouter.Handle{
		"mis-prestamos": api.MyLoans,
		"categorias":    api.ListCategories,
	})))
	router.POST("/api/libros/:id/prestar", m.auth(api.BorrowBook))

	router.GET("/api/admin/libros", m.admin(api.ListBooks))
	router.POST("/api/admin/libros", m.admin(api.CreateBook))
	router.GET("/api/admin/libros/:id", m.admin(api.GetBook))
	router.PUT("/api/admin/libros/:id", m.admin(api.UpdateBook))
	router.DELETE("/api/admin/libros/:id", m.admin(api.DeleteBook))

	router.GET("/api/admin/categorias", m.admin(api.ListCategories))
	router.POST("/api/admin/categorias", m.admin(api.CreateCategory))
	router.GET("/api/admin/categorias/:id", m.admin(api.GetCategory))
	router.PUT("/api/admin/categorias/:id", m.admin(api.UpdateCategory))
	router.DELETE("/api/admin/categorias/:id", m.admin(api.DeleteCategory))

	router.GET("/api/admin/usuarios", m.admin(api.ListUsers))
	router.POST("/api/admin/usuarios", m.admin(api.CreateUser))
	router.GET("/api/admin/usuarios/:id", m.admin(api.GetUser))
	router.PUT("/api/admin/usuarios/:id", m.admin(api.UpdateUser))
	router.DELETE("/api/admin/usuarios/:id", m.admin(api.DeleteUser))

	router.GET("/api/admin/prestamos", m.admin(api.ListLoans(LoanFilterAll)))
	router.GET("/api/admin/prestamos/:id", m.admin(BySegment(api.GetLoan, map[string]httprouter.Handle{
		"activos":     api.ListLoans(LoanFilterActive),
		"multas":      api.ListLoans(LoanFilterFined),
		"diagnostico": api.Diagnose,
	})))
	router.PUT("/api/admin/prestamos/:id", m.admin(BySegment(api.notFoundHandle, map[string]httprouter.Handle{
		"actualizar-multas": api.RefreshFines,
	})))
	router.PUT("/api/admin/prestamos/:id/devolver", m.admin(api.ReturnLoan))
	router.PUT("/api/admin/prestamos/:id/pagar-multa", m.admin(api.PayFine))
	router.GET("/api/admin/prestamos/:id/historial", m.admin(api.LoanHistory))

	router.POST("/api/upload/imagen", m.admin(api.UploadImage))
	router.GET(UploadsRoutePrefix+"*filepath", m.public(api.ServeUpload))
	return router
}

func (api *APIHandler) notFoundHandle(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	api.NotFound().ServeHTTP(w, r)
}
