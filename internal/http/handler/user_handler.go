package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"auth-session-service/internal/http/response"
	"auth-session-service/internal/observability"
	"auth-session-service/internal/repository"
	"auth-session-service/internal/service"
)

type UserService interface {
	List(query repository.AccountListQuery) (repository.PageResult[service.AccountView], error)
	GetByID(id uuid.UUID) (service.AccountView, error)
	Delete(id uuid.UUID) error
}

type UserHandler struct {
	users UserService
}

func NewUserHandler(users UserService) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	result, err := h.users.List(repository.AccountListQuery{
		PageRequest: repository.PageRequest{Page: page, PageSize: pageSize},
		Username:    q.Get("username"),
	})
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "request failed", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

func (h *UserHandler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid account id", nil)
		return
	}
	view, err := h.users.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "account not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "request failed", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, view)
}

// Delete removes the account and all of its sessions as one logical unit.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid account id", nil)
		return
	}
	if err := h.users.Delete(id); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "account not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "request failed", nil)
		return
	}
	observability.Audit(r, "user.delete", "account_id", id.String())
	response.NoContent(w)
}
