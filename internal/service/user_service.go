package service

import (
	"time"

	"github.com/google/uuid"

	"auth-session-service/internal/domain"
	"auth-session-service/internal/repository"
)

// AccountView is the external representation of an account; the credential
// hash and the token collection never leave the service layer.
type AccountView struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type UserService struct {
	store repository.AccountStore
}

func NewUserService(store repository.AccountStore) *UserService {
	return &UserService{store: store}
}

func (s *UserService) List(query repository.AccountListQuery) (repository.PageResult[AccountView], error) {
	page, err := s.store.ListPaged(query)
	if err != nil {
		return repository.PageResult[AccountView]{}, err
	}
	out := repository.PageResult[AccountView]{
		Page:       page.Page,
		PageSize:   page.PageSize,
		Total:      page.Total,
		TotalPages: page.TotalPages,
		Items:      make([]AccountView, 0, len(page.Items)),
	}
	for i := range page.Items {
		out.Items = append(out.Items, NewAccountView(&page.Items[i]))
	}
	return out, nil
}

func (s *UserService) GetByID(id uuid.UUID) (AccountView, error) {
	account, err := s.store.FindByID(id)
	if err != nil {
		return AccountView{}, err
	}
	return NewAccountView(account), nil
}

// Delete removes the account together with all of its session tokens.
func (s *UserService) Delete(id uuid.UUID) error {
	return s.store.DeleteByID(id)
}

func NewAccountView(a *domain.Account) AccountView {
	return AccountView{
		ID:        a.ID,
		Username:  a.Username,
		CreatedAt: a.CreatedAt.UTC(),
	}
}
