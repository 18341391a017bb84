package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

func (api *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	users, err := api.userService.ListUsers(r.Context())
	if err != nil {
		api.Fail(w, r, err, "failed to list users")
		return
	}
	total := len(users)
	api.Respond(w, r, http.StatusOK, "All users fetched successfully.", &total, users)
}

func (api *APIHandler) GetUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "user id provided is not valid")
		return
	}
	user, err := api.userService.GetUser(r.Context(), id)
	if err != nil {
		api.Fail(w, r, err, "failed to get user", zap.Int64("user.id", id))
		return
	}
	api.Respond(w, r, http.StatusOK, "User fetched successfully.", nil, user)
}

func (api *APIHandler) CreateUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var user User
	if err := DecodeRequestBody(r, &user); err != nil {
		api.Fail(w, r, NewInvalidArgumentError("invalid user request body"), "failed to decode user", zap.Error(err))
		return
	}
	user, err := api.userService.CreateUser(r.Context(), user)
	if err != nil {
		api.Fail(w, r, err, "failed to create user", zap.String("username", user.Username))
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("user created", zap.Int64("user.id", user.ID), zap.String("role", string(user.Role)))
	api.Respond(w, r, http.StatusCreated, "User created successfully.", nil, user)
}

// UpdateUser replaces the profile of a user. The password
// is only changed when a new one is provided.
func (api *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := GetAuthUserFromContext(r.Context())
	if !ok {
		api.Fail(w, r, ErrUnauthenticated, "no authenticated user")
		return
	}
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "user id provided is not valid")
		return
	}
	var user User
	if err = DecodeRequestBody(r, &user); err != nil {
		api.Fail(w, r, NewInvalidArgumentError("invalid user request body"), "failed to decode user", zap.Error(err))
		return
	}
	user, err = api.userService.UpdateUser(r.Context(), actor, id, user)
	if err != nil {
		api.Fail(w, r, err, "failed to update user", zap.Int64("user.id", id))
		return
	}
	api.Respond(w, r, http.StatusOK, "User updated successfully.", nil, user)
}

func (api *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := GetAuthUserFromContext(r.Context())
	if !ok {
		api.Fail(w, r, ErrUnauthenticated, "no authenticated user")
		return
	}
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "user id provided is not valid")
		return
	}
	if err = api.userService.DeleteUser(r.Context(), actor, id); err != nil {
		api.Fail(w, r, err, "failed to delete user", zap.Int64("user.id", id))
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("user deleted", zap.Int64("user.id", id))
	api.Respond(w, r, http.StatusOK, "User deleted successfully.", nil, EmptyData)
}
