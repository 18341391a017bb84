package main

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// MiddlewareFunc is a custom type for ease of use.
type MiddlewareFunc func(httprouter.Handle) httprouter.Handle

// Middlewares is a custom type to represent a stack of
// middleware functions used to build a single chain.
type Middlewares []MiddlewareFunc

// MiddlewaresStacks builds the stacks used by the router. Every stack shares the
// same base. The login stack adds the rate limiter, the auth stack requires a valid
// token and the admin stack also requires the ADMIN role. Ops requests skip cors
// and the maintenance mode checks.
func (api *APIHandler) MiddlewaresStacks() (public, login, auth, admin, ops *Middlewares) {
	base := func() Middlewares {
		return Middlewares{
			api.RequestIDMiddleware,
			api.RequestsCounterMiddleware,
			api.StatsMiddleware,
			api.CoreMiddleware,
			api.PanicRecoveryMiddleware,
		}
	}

	pub := append(base(), api.CORSMiddleware, api.MaintenanceModeMiddleware)
	lgn := append(base(), api.CORSMiddleware, api.MaintenanceModeMiddleware, api.LoginRateLimitMiddleware)
	ath := append(base(), api.CORSMiddleware, api.MaintenanceModeMiddleware, api.AuthMiddleware)
	adm := append(base(), api.CORSMiddleware, api.MaintenanceModeMiddleware, api.AuthMiddleware, api.AdminOnlyMiddleware)
	opm := base()
	return &pub, &lgn, &ath, &adm, &opm
}

// RequestIDMiddleware adds a unique id to the request context and to the response
// headers. A valid id provided by the caller under X-Request-ID is reused.
func (api *APIHandler) RequestIDMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || !api.idsHandler.IsValid(requestID, RequestIDPrefix) {
			requestID = api.idsHandler.Generate(RequestIDPrefix)
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ContextRequestID, requestID)
		r = r.WithContext(ctx)
		next(w, r, ps)
	}
}

// RequestsCounterMiddleware increments the number of received requests statistics and add this
// new value to the request context to be used during logging as `request.num` field.
func (api *APIHandler) RequestsCounterMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), ContextRequestNumber, atomic.AddUint64(&api.stats.called, 1))
		r = r.WithContext(ctx)
		next(w, r, ps)
	}
}

// StatsMiddleware records the response status of each request into the ops
// statistics and into the prometheus collectors.
func (api *APIHandler) StatsMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := api.clock.Now()
		cw := NewCustomResponseWriter(w)
		next(cw, r, ps)

		code := cw.Status()
		api.stats.mu.Lock()
		api.stats.status[code]++
		api.stats.mu.Unlock()

		path := RouteLabel(r.URL.Path)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(code)).Inc()
		HTTPRequestDuration.WithLabelValues(path).Observe(api.clock.Now().Sub(start).Seconds())
	}
}

// CoreMiddleware attaches a request scoped logger to the context then logs
// the request details on arrival and its result once processed.
func (api *APIHandler) CoreMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		logger := api.logger.With(
			zap.String("request.id", GetValueFromContext(r.Context(), ContextRequestID)),
			zap.Uint64("request.num", GetRequestNumberFromContext(r.Context())),
			zap.String("request.method", r.Method),
			zap.String("request.path", r.URL.Path),
		)
		logger.Info(
			"request",
			zap.String("request.ip", api.ClientIP(r)),
			zap.String("request.agent", r.UserAgent()),
			zap.String("request.referer", r.Referer()),
		)

		ctx := context.WithValue(r.Context(), ContextLogger, logger)
		r = r.WithContext(ctx)
		next(w, r, ps)

		fields := []zap.Field{zap.Duration("request.duration", time.Since(start))}
		if cw, ok := w.(*CustomResponseWriter); ok {
			fields = append(fields, zap.Int("response.status", cw.Status()), zap.Int("response.bytes", cw.Bytes()))
		}
		logger.Info("response", fields...)
	}
}

// CORSMiddleware intercepts each incoming HTTP calls then apply cors headers on it.
func (api *APIHandler) CORSMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		setupCORS(w, api.allowedOrigin())
		next(w, r, ps)
	}
}

// MaintenanceModeMiddleware rejects requests with 503 while the
// maintenance mode is enabled and shares its message with the clients.
func (api *APIHandler) MaintenanceModeMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !api.mode.enabled.Load() {
			next(w, r, ps)
			return
		}

		api.mode.mu.RLock()
		message := api.mode.message
		started := api.mode.started
		api.mode.mu.RUnlock()
		if message == "" {
			message = "service under maintenance. please retry later"
		}

		requestID := GetValueFromContext(r.Context(), ContextRequestID)
		w.Header().Set("Retry-After", "300")
		errResp := NewAPIError(requestID, http.StatusServiceUnavailable, CodeMaintenance, message,
			map[string]string{"started": started.Format(time.RFC1123)})
		if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
			api.GetLoggerFromContext(r.Context()).Error("failed to send maintenance response", zap.Error(err))
		}
	}
}

// PanicRecoveryMiddleware catches any panic during the request lifecycle and produces
// an error log for further analysis. It sends a failure response to the client with 500.
func (api *APIHandler) PanicRecoveryMiddleware(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		recovery := func() {
			if err := recover(); err != nil {
				requestID := GetValueFromContext(r.Context(), ContextRequestID)
				logger := api.GetLoggerFromContext(r.Context())
				logger.Error("panic occurred", zap.Any("error", err), zap.Stack("stack"))
				errResp := NewAPIError(requestID, http.StatusInternalServerError, CodeInternal, "failed to process the request", EmptyData)
				if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
					logger.Error("failed to send error response", zap.Error(err))
				}
			}
		}
		defer recovery()
		next(w, r, ps)
	}
}

// Chain wraps a given httprouter.Handle with a list of middlewares.
// It does by starting from the last middleware from the list.
func (m *Middlewares) Chain(h httprouter.Handle) httprouter.Handle {
	if len(*m) == 0 {
		return h
	}
	lg := len(*m)
	handle := (*m)[lg-1](h)

	for i := lg - 2; i >= 0; i-- {
		handle = (*m)[i](handle)
	}

	return handle
}

func (api *APIHandler) allowedOrigin() string {
	if api.config == nil || api.config.Server.AllowedOrigin == "" {
		return "*"
	}
	return api.config.Server.AllowedOrigin
}

func setupCORS(w http.ResponseWriter, origin string) {
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH, HEAD")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID, User-Agent, Accept-Language, Cache-Control")
	w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
}
