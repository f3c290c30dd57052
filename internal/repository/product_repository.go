package repository

import (
	"context"

	"github.com/kopesha/kopesha-api/internal/models"
	"gorm.io/gorm"
)

// ProductRepository defines the interface for loan product data access
type ProductRepository interface {
	FindByID(ctx context.Context, id uint) (*models.LoanProduct, error)
	Create(ctx context.Context, product *models.LoanProduct) error
	Update(ctx context.Context, product *models.LoanProduct) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, query *ListQuery) ([]models.LoanProduct, int64, error)
	FindActive(ctx context.Context) ([]models.LoanProduct, error)
	HasLoans(ctx context.Context, productID uint) (bool, error)
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new loan product repository
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) FindByID(ctx context.Context, id uint) (*models.LoanProduct, error) {
	var product models.LoanProduct
	err := r.db.WithContext(ctx).First(&product, id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) Create(ctx context.Context, product *models.LoanProduct) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepository) Update(ctx context.Context, product *models.LoanProduct) error {
	return r.db.WithContext(ctx).Save(product).Error
}

func (r *productRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.LoanProduct{}, id).Error
}

func (r *productRepository) List(ctx context.Context, query *ListQuery) ([]models.LoanProduct, int64, error) {
	var products []models.LoanProduct
	var total int64

	db := r.db.WithContext(ctx).Model(&models.LoanProduct{})

	if query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Where("name ILIKE ? OR description ILIKE ?", search, search)
	}

	if query.Filters["interest_method"] != "" {
		db = db.Where("interest_method = ?", query.Filters["interest_method"])
	}

	if query.Filters["active"] != "" {
		db = db.Where("active = ?", query.Filters["active"] == "true")
	}

	db.Count(&total)

	if query.SortBy != "" {
		order := query.SortBy
		if query.SortDir == "desc" {
			order += " DESC"
		}
		db = db.Order(order)
	} else {
		db = db.Order("name ASC")
	}

	if query.PerPage > 0 {
		db = db.Offset((query.Page - 1) * query.PerPage).Limit(query.PerPage)
	}

	err := db.Find(&products).Error
	return products, total, err
}

func (r *productRepository) FindActive(ctx context.Context) ([]models.LoanProduct, error) {
	var products []models.LoanProduct
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("name ASC").
		Find(&products).Error
	return products, err
}

func (r *productRepository) HasLoans(ctx context.Context, productID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("product_id = ?", productID).
		Count(&count).Error
	return count > 0, err
}
