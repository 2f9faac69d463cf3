package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TxRepository exposes customer persistence inside a transaction.
type TxRepository interface {
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	FindCustomerByDNI(ctx context.Context, dni string) (Customer, error)
	// FindCustomerByNameKey only matches customers registered without a DNI.
	FindCustomerByNameKey(ctx context.Context, key string) (Customer, error)
	// InsertCustomer returns ErrDuplicate when the DNI or anonymous name key is taken.
	InsertCustomer(ctx context.Context, c Customer, nameKey string) (Customer, error)
}

type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
}

type Service struct {
	repo RepositoryPort
}

func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Create registers a customer. A DNI already on file is a conflict. A customer registered
// by DNI alone is named after the DNI.
func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (Customer, error) {
	req, err := withDefaultName(req)
	if err != nil {
		return Customer{}, err
	}
	var created Customer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertCustomer(ctx, fromRequest(req), NameKey(req.Name))
		return err
	})
	if err != nil {
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	return s.repo.List(ctx, req)
}

// GetOrCreate resolves an inline customer inside the caller's transaction. The identity is the
// DNI when present, otherwise the normalized name; a DNI lookup ignores the name entirely.
// A concurrent insert of the same identity surfaces as ErrDuplicate and is resolved by
// reading the winner's row.
func GetOrCreate(ctx context.Context, tx TxRepository, req CreateCustomerRequest) (Customer, error) {
	req, err := withDefaultName(req)
	if err != nil {
		return Customer{}, err
	}
	key := NameKey(req.Name)
	find := func() (Customer, error) {
		if req.DNI != "" {
			return tx.FindCustomerByDNI(ctx, req.DNI)
		}
		return tx.FindCustomerByNameKey(ctx, key)
	}
	existing, err := find()
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Customer{}, err
	}
	created, err := tx.InsertCustomer(ctx, fromRequest(req), key)
	if errors.Is(err, ErrDuplicate) {
		return find()
	}
	return created, err
}

// withDefaultName falls back to the DNI as display name. Without either the request is invalid.
func withDefaultName(req CreateCustomerRequest) (CreateCustomerRequest, error) {
	req.DNI = strings.TrimSpace(req.DNI)
	if strings.TrimSpace(req.Name) == "" {
		if req.DNI == "" {
			return req, ErrNameEmpty
		}
		req.Name = req.DNI
	}
	return req, nil
}

func fromRequest(req CreateCustomerRequest) Customer {
	c := Customer{
		Name:     strings.TrimSpace(req.Name),
		Phone:    req.Phone,
		Email:    req.Email,
		Address:  req.Address,
		IsActive: true,
	}
	if req.DNI != "" {
		dni := req.DNI
		c.DNI = &dni
	}
	return c
}
