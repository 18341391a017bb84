package main

import (
	"encoding/json"
	"net/http"

	_ "github.com/jeamon/library-lending/docs"
	"github.com/julienschmidt/httprouter"
	httpswagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// MiddlewareMap contains the middlewares chains used for the public,
// login, authenticated, admin and ops requests.
type MiddlewareMap struct {
	public func(httprouter.Handle) httprouter.Handle
	login  func(httprouter.Handle) httprouter.Handle
	auth   func(httprouter.Handle) httprouter.Handle
	admin  func(httprouter.Handle) httprouter.Handle
	ops    func(httprouter.Handle) httprouter.Handle
}

// NewMiddlewareMap builds the map from the stacks of the api handler.
func (api *APIHandler) NewMiddlewareMap() *MiddlewareMap {
	public, login, auth, admin, ops := api.MiddlewaresStacks()
	return &MiddlewareMap{
		public: public.Chain,
		login:  login.Chain,
		auth:   auth.Chain,
		admin:  admin.Chain,
		ops:    ops.Chain,
	}
}

// SetupRoutes injects library and ops related endpoints if required.
func (api *APIHandler) SetupRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.RedirectTrailingSlash = true
	router.NotFound = api.NotFound()
	router.HandleOPTIONS = true
	router.GlobalOPTIONS = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Access-Control-Request-Method") != "" {
			setupCORS(w, api.allowedOrigin())
		}
		w.WriteHeader(http.StatusNoContent)
	})
	api.SetupLibraryRoutes(router, m)
	if api.config.OpsEndpointsEnable {
		api.SetupOpsRoutes(router, m)
	}
	router.GET("/swagger/*any", m.public(api.OpsHandlerWrapper(httpswagger.WrapHandler)))
	return router
}

// NotFound returns a JSON handler for inexistant routes.
func (api *APIHandler) NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := api.idsHandler.Generate(RequestIDPrefix)
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.WriteHeader(http.StatusNotFound)
		if err := json.NewEncoder(w).Encode(
			map[string]string{
				"requestid": requestID,
				"message":   "route does not exist",
				"path":      r.Method + " " + r.URL.Path,
			},
		); err != nil {
			api.logger.Error("failed to send not found response", zap.String("request.id", requestID), zap.Error(err))
		}
	})
}

// BySegment serves the static sub-resources sharing their position with
// the `:id` parameter since the router does not allow both on one level.
// Unknown segments are passed to the fallback handler.
func BySegment(fallback httprouter.Handle, statics map[string]httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if h, found := statics[ps.ByName("id")]; found {
			h(w, r, ps)
			return
		}
		fallback(w, r, ps)
	}
}
