package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"auth-session-service/internal/domain"
	"auth-session-service/internal/observability"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrUsernameTaken   = errors.New("username already taken")
	// ErrSessionRevoked means a token revocation lost the race: another
	// writer revoked the same token between load and persist.
	ErrSessionRevoked = errors.New("session token already revoked")
)

type AccountListQuery struct {
	PageRequest
	Username string
}

// AccountStore is the persistence boundary for account aggregates. It is the
// only place allowed to compose an aggregate out of its two record kinds
// (account rows and session token rows); every write commits both kinds as a
// single logical unit.
type AccountStore interface {
	Create(account *domain.Account) error
	FindByID(id uuid.UUID) (*domain.Account, error)
	FindByUsername(username string) (*domain.Account, error)
	FindBySessionKey(secret string) (*domain.Account, error)
	ListPaged(query AccountListQuery) (PageResult[domain.Account], error)
	Update(account *domain.Account) error
	DeleteByID(id uuid.UUID) error
	PurgeTerminalTokens(cutoff time.Time) (int64, error)
}

type GormAccountStore struct{ db *gorm.DB }

func NewAccountStore(db *gorm.DB) AccountStore { return &GormAccountStore{db: db} }

func (s *GormAccountStore) Create(account *domain.Account) error {
	changes := account.Changes()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Tokens").Create(account).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUsernameTaken
			}
			return err
		}
		for i := range changes.Added {
			if err := tx.Create(&changes.Added[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			observability.RecordRepositoryOperation(context.Background(), "account", "create", "conflict")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "account", "create", "error")
		}
		return err
	}
	account.Rehydrate()
	observability.RecordRepositoryOperation(context.Background(), "account", "create", "success")
	return nil
}

func (s *GormAccountStore) FindByID(id uuid.UUID) (*domain.Account, error) {
	return s.findOne("find_by_id", func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	})
}

func (s *GormAccountStore) FindByUsername(username string) (*domain.Account, error) {
	return s.findOne("find_by_username", func(db *gorm.DB) *gorm.DB {
		return db.Where("username = ?", username)
	})
}

// FindBySessionKey resolves the owning account of a session token secret and
// returns it with its full token collection.
func (s *GormAccountStore) FindBySessionKey(secret string) (*domain.Account, error) {
	var token domain.SessionToken
	err := s.db.Where("secret = ?", secret).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "account", "find_by_session_key", "not_found")
			return nil, ErrAccountNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "account", "find_by_session_key", "error")
		return nil, err
	}
	return s.findOne("find_by_session_key", func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", token.AccountID)
	})
}

func (s *GormAccountStore) ListPaged(query AccountListQuery) (PageResult[domain.Account], error) {
	req := normalizePageRequest(query.PageRequest)
	result := PageResult[domain.Account]{
		Page:     req.Page,
		PageSize: req.PageSize,
	}

	base := s.db.Model(&domain.Account{})
	if query.Username != "" {
		base = base.Where("username LIKE ?", query.Username+"%")
	}
	if err := base.Session(&gorm.Session{}).Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "account", "list_paged", "error")
		return PageResult[domain.Account]{}, err
	}

	offset := (req.Page - 1) * req.PageSize
	err := base.Order("id ASC").Offset(offset).Limit(req.PageSize).Find(&result.Items).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "account", "list_paged", "error")
		return PageResult[domain.Account]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	observability.RecordRepositoryOperation(context.Background(), "account", "list_paged", "success")
	return result, nil
}

// Update persists the aggregate's write set in one transaction: new tokens
// are inserted and revocations are applied as conditional updates keyed on
// the pre-mutation revoked flag. A revocation whose row was already revoked
// by a concurrent writer fails the whole write with ErrSessionRevoked.
func (s *GormAccountStore) Update(account *domain.Account) error {
	changes := account.Changes()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Tokens").Save(account).Error; err != nil {
			return err
		}
		for _, id := range changes.Revoked {
			res := tx.Model(&domain.SessionToken{}).
				Where("id = ? AND revoked = ?", id, false).
				Update("revoked", true)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrSessionRevoked
			}
		}
		for i := range changes.Added {
			if err := tx.Create(&changes.Added[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionRevoked) {
			observability.RecordRepositoryOperation(context.Background(), "account", "update", "conflict")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "account", "update", "error")
		}
		return err
	}
	account.Rehydrate()
	observability.RecordRepositoryOperation(context.Background(), "account", "update", "success")
	return nil
}

// DeleteByID removes the account and every one of its session tokens as a
// single logical unit; a token must not outlive its account.
func (s *GormAccountStore) DeleteByID(id uuid.UUID) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&domain.SessionToken{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Account{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAccountNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "account", "delete_by_id", "not_found")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "account", "delete_by_id", "error")
		}
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "account", "delete_by_id", "success")
	return nil
}

// PurgeTerminalTokens deletes session tokens that reached a terminal state
// before the cutoff: revoked tokens last touched before it, and tokens whose
// expiry lies before it.
func (s *GormAccountStore) PurgeTerminalTokens(cutoff time.Time) (int64, error) {
	res := s.db.
		Where("(revoked = ? AND updated_at <= ?) OR expires_at <= ?", true, cutoff, cutoff).
		Delete(&domain.SessionToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session_token", "purge_terminal", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session_token", "purge_terminal", "success")
	return res.RowsAffected, nil
}

func (s *GormAccountStore) findOne(op string, scope func(*gorm.DB) *gorm.DB) (*domain.Account, error) {
	var a domain.Account
	err := scope(s.db).
		Preload("Tokens", func(db *gorm.DB) *gorm.DB {
			return db.Order("session_tokens.created_at ASC, session_tokens.id ASC")
		}).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "account", op, "not_found")
			return nil, ErrAccountNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "account", op, "error")
		return nil, err
	}
	a.Rehydrate()
	observability.RecordRepositoryOperation(context.Background(), "account", op, "success")
	return &a, nil
}
