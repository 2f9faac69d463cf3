package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/codes"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// TxRepository exposes catalog writes inside a transaction.
type TxRepository interface {
	codes.Checker
	GetProductForUpdate(ctx context.Context, id int64) (inventory.Product, error)
	InsertProduct(ctx context.Context, p inventory.Product) (inventory.Product, error)
	// UpdateProductDetails writes every column except code and the stock counters.
	UpdateProductDetails(ctx context.Context, p inventory.Product) (inventory.Product, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	// InsertSupplier returns ErrDuplicateRUC for a RUC already on file.
	InsertSupplier(ctx context.Context, s Supplier) (Supplier, error)
}

// RepositoryPort abstracts catalog persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (inventory.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]inventory.Product, int, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	ListSuppliers(ctx context.Context) ([]Supplier, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service maintains products and suppliers. It never touches stock counters.
type Service struct {
	repo   RepositoryPort
	codes  *codes.Generator
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds the catalog service.
func NewService(repo RepositoryPort, generator *codes.Generator, audit AuditPort, logger *slog.Logger) *Service {
	if generator == nil {
		generator = codes.NewGenerator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, codes: generator, audit: audit, logger: logger}
}

// CreateProduct registers a product with a generated P- code and zero stock.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput, actorID int64) (inventory.Product, error) {
	if strings.TrimSpace(input.Name) == "" {
		return inventory.Product{}, fmt.Errorf("catalog: name required: %w", shared.ErrValidation)
	}
	if !shared.ValidAmount(input.PurchasePrice) || !shared.ValidAmount(input.SalePrice) {
		return inventory.Product{}, ErrInvalidPrice
	}
	minStock := inventory.DefaultMinStock
	if input.MinStock != nil {
		minStock = *input.MinStock
	}
	if minStock < 0 {
		return inventory.Product{}, fmt.Errorf("catalog: min stock must not be negative: %w", shared.ErrValidation)
	}
	var created inventory.Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.SupplierID != nil {
			if _, err := tx.GetSupplier(ctx, *input.SupplierID); err != nil {
				return err
			}
		}
		code, err := s.codes.Next(ctx, codes.KindProduct, tx)
		if err != nil {
			return err
		}
		created, err = tx.InsertProduct(ctx, inventory.Product{
			Code:           code,
			Name:           strings.TrimSpace(input.Name),
			Description:    input.Description,
			Category:       input.Category,
			SupplierID:     input.SupplierID,
			PurchasePrice:  input.PurchasePrice,
			SalePrice:      input.SalePrice,
			MinStock:       minStock,
			ExpirationDate: input.ExpirationDate,
			IsActive:       true,
		})
		return err
	})
	if err != nil {
		return inventory.Product{}, err
	}
	s.record(ctx, actorID, "catalog:product_create", "product", created.Code)
	return created, nil
}

// UpdateProduct patches descriptive fields, prices, threshold and active flag.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input UpdateProductInput, actorID int64) (inventory.Product, error) {
	var updated inventory.Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if input.Name != nil {
			if strings.TrimSpace(*input.Name) == "" {
				return fmt.Errorf("catalog: name required: %w", shared.ErrValidation)
			}
			p.Name = strings.TrimSpace(*input.Name)
		}
		if input.Description != nil {
			p.Description = *input.Description
		}
		if input.Category != nil {
			p.Category = *input.Category
		}
		if input.SupplierID != nil {
			if _, err := tx.GetSupplier(ctx, *input.SupplierID); err != nil {
				return err
			}
			p.SupplierID = input.SupplierID
		}
		if input.PurchasePrice != nil {
			p.PurchasePrice = *input.PurchasePrice
		}
		if input.SalePrice != nil {
			p.SalePrice = *input.SalePrice
		}
		if !shared.ValidAmount(p.PurchasePrice) || !shared.ValidAmount(p.SalePrice) {
			return ErrInvalidPrice
		}
		if input.MinStock != nil {
			if *input.MinStock < 0 {
				return fmt.Errorf("catalog: min stock must not be negative: %w", shared.ErrValidation)
			}
			p.MinStock = *input.MinStock
		}
		if input.ExpirationDate != nil {
			p.ExpirationDate = input.ExpirationDate
		}
		if input.IsActive != nil {
			p.IsActive = *input.IsActive
		}
		updated, err = tx.UpdateProductDetails(ctx, p)
		return err
	})
	if err != nil {
		return inventory.Product{}, err
	}
	s.record(ctx, actorID, "catalog:product_update", "product", updated.Code)
	return updated, nil
}

// GetProduct returns a product.
func (s *Service) GetProduct(ctx context.Context, id int64) (inventory.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts returns a filtered page of products and the unpaged count.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) ([]inventory.Product, int, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.repo.ListProducts(ctx, filter)
}

// CreateSupplier registers a supplier.
func (s *Service) CreateSupplier(ctx context.Context, input CreateSupplierInput, actorID int64) (Supplier, error) {
	if len(input.RUC) != 11 || strings.Trim(input.RUC, "0123456789") != "" {
		return Supplier{}, fmt.Errorf("catalog: ruc must have 11 digits: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(input.Name) == "" {
		return Supplier{}, fmt.Errorf("catalog: name required: %w", shared.ErrValidation)
	}
	var created Supplier
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertSupplier(ctx, Supplier{
			RUC:      input.RUC,
			Name:     strings.TrimSpace(input.Name),
			Contact:  input.Contact,
			Phone:    input.Phone,
			Email:    input.Email,
			Address:  input.Address,
			IsActive: true,
		})
		return err
	})
	if err != nil {
		return Supplier{}, err
	}
	s.record(ctx, actorID, "catalog:supplier_create", "supplier", strconv.FormatInt(created.ID, 10))
	return created, nil
}

// GetSupplier returns a supplier.
func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

// ListSuppliers returns every supplier ordered by name.
func (s *Service) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity, id string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: id}); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
