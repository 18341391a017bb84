package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Login godoc
// @Summary      Authenticate with username and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        credentials  body      LoginRequest  true  "credentials"
// @Success      200          {object}  APIResponse
// @Failure      401          {object}  APIError
// @Failure      403          {object}  APIError
// @Failure      429          {object}  APIError
// @Router       /api/auth/login [post]
func (api *APIHandler) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req LoginRequest
	if err := DecodeRequestBody(r, &req); err != nil {
		api.Fail(w, r, NewInvalidArgumentError("invalid login request body"), "failed to decode login request", zap.Error(err))
		return
	}
	if req.Username == "" {
		api.Fail(w, r, missingFieldError("username"), "failed to login")
		return
	}
	if req.Password == "" {
		api.Fail(w, r, missingFieldError("password"), "failed to login")
		return
	}

	resp, err := api.userService.Login(r.Context(), req)
	if err != nil {
		api.Fail(w, r, err, "failed to login", zap.String("username", req.Username))
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("user logged in", zap.String("username", resp.Username), zap.String("role", string(resp.Role)))
	api.Respond(w, r, http.StatusOK, "Login successful.", nil, resp)
}

// Register godoc
// @Summary      Sign up a library member
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        account  body      RegisterRequest  true  "account"
// @Success      201      {object}  APIResponse
// @Failure      400      {object}  APIError
// @Router       /api/auth/register [post]
func (api *APIHandler) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req RegisterRequest
	if err := DecodeRequestBody(r, &req); err != nil {
		api.Fail(w, r, NewInvalidArgumentError("invalid register request body"), "failed to decode register request", zap.Error(err))
		return
	}
	user, err := api.userService.Register(r.Context(), req)
	if err != nil {
		api.Fail(w, r, err, "failed to register user", zap.String("username", req.Username))
		return
	}
	api.Respond(w, r, http.StatusCreated, "User registered successfully.", nil, user)
}

// CreateAdmin signs up the first administrator account. It is
// rejected once any administrator exists.
func (api *APIHandler) CreateAdmin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req RegisterRequest
	if err := DecodeRequestBody(r, &req); err != nil {
		api.Fail(w, r, NewInvalidArgumentError("invalid register request body"), "failed to decode admin request", zap.Error(err))
		return
	}
	user, err := api.userService.CreateAdmin(r.Context(), req)
	if err != nil {
		api.Fail(w, r, err, "failed to create admin", zap.String("username", req.Username))
		return
	}
	api.GetLoggerFromContext(r.Context()).Warn("admin account created", zap.String("username", user.Username))
	api.Respond(w, r, http.StatusCreated, "Admin created successfully.", nil, user)
}
