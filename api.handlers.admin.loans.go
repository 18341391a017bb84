package main

import (
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// ListLoans provides the handler listing the loans selected by filter.
func (api *APIHandler) ListLoans(filter LoanFilter) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		loans, err := api.loanService.ListLoans(r.Context(), filter)
		if err != nil {
			api.Fail(w, r, err, "failed to list loans", zap.String("filter", string(filter)))
			return
		}
		total := len(loans)
		api.Respond(w, r, http.StatusOK, fmt.Sprintf("Loans (%s) fetched successfully.", filter), &total, loans)
	}
}

func (api *APIHandler) GetLoan(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "loan id provided is not valid")
		return
	}
	loan, err := api.loanService.GetLoan(r.Context(), id)
	if err != nil {
		api.Fail(w, r, err, "failed to get loan", zap.Int64("loan.id", id))
		return
	}
	api.Respond(w, r, http.StatusOK, "Loan fetched successfully.", nil, loan)
}

// ReturnLoan godoc
// @Summary      Register the return of a borrowed copy
// @Description  A late return fines the loan with the days late times the daily fine.
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "loan id"
// @Success      200  {object}  APIResponse
// @Failure      404  {object}  APIError
// @Router       /api/admin/prestamos/{id}/devolver [put]
func (api *APIHandler) ReturnLoan(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "loan id provided is not valid")
		return
	}
	loan, err := api.loanService.Return(r.Context(), id)
	if err != nil {
		api.Fail(w, r, err, "failed to return loan", zap.Int64("loan.id", id))
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("loan returned",
		zap.Int64("loan.id", id),
		zap.String("loan.status", string(loan.Status)),
		zap.Int64("loan.fine", loan.FineAmount),
	)
	api.Respond(w, r, http.StatusOK, "Loan returned successfully.", nil, loan)
}

// RefreshFines godoc
// @Summary      Fine every overdue loan as of today
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  APIResponse
// @Router       /api/admin/prestamos/actualizar-multas [put]
func (api *APIHandler) RefreshFines(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	updated, err := api.loanService.RefreshFines(r.Context())
	if err != nil {
		api.Fail(w, r, err, "failed to refresh fines", zap.Int("updated", updated))
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("fines refreshed", zap.Int("updated", updated))
	api.Respond(w, r, http.StatusOK, fmt.Sprintf("%d loan(s) updated with fines.", updated), nil, map[string]int{"updated": updated})
}

func (api *APIHandler) PayFine(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "loan id provided is not valid")
		return
	}
	loan, err := api.loanService.PayFine(r.Context(), id)
	if err != nil {
		api.Fail(w, r, err, "failed to pay fine", zap.Int64("loan.id", id))
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("fine paid", zap.Int64("loan.id", id), zap.Int64("loan.fine", loan.FineAmount))
	api.Respond(w, r, http.StatusOK, "Fine paid successfully.", nil, loan)
}

// LoanHistory returns the events recorded in the ledger for a loan.
func (api *APIHandler) LoanHistory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := ParseID(ps.ByName("id"))
	if err != nil {
		api.Fail(w, r, err, "loan id provided is not valid")
		return
	}
	events, err := api.loanService.History(r.Context(), id)
	if err != nil {
		api.Fail(w, r, err, "failed to get loan history", zap.Int64("loan.id", id))
		return
	}
	total := len(events)
	api.Respond(w, r, http.StatusOK, "Loan history fetched successfully.", &total, events)
}

// Diagnose reports who is calling with which role along with the loans counters.
func (api *APIHandler) Diagnose(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	user, ok := GetAuthUserFromContext(r.Context())
	if !ok {
		api.Fail(w, r, ErrUnauthenticated, "no authenticated user")
		return
	}
	summary, err := api.loanService.Summary(r.Context())
	if err != nil {
		api.Fail(w, r, err, "failed to summarize loans")
		return
	}
	api.Respond(w, r, http.StatusOK, fmt.Sprintf("Authenticated: %s, Role: %s", user.Username, user.Role), nil,
		map[string]interface{}{
			"username": user.Username,
			"role":     user.Role,
			"loans":    summary,
		},
	)
}
