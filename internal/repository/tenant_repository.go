// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"gqx-gateway-go/internal/model"

	"gorm.io/gorm"
)

// TenantRepository 接口定义了租户数据的持久化操作。
type TenantRepository interface {
	Create(tenant *model.Tenant) error
	FindByKeyHash(hash string) (*model.Tenant, error)
	FindByTenantID(tenantID string) (*model.Tenant, error)
}

// tenantRepository 是 TenantRepository 接口的 GORM 实现。
type tenantRepository struct {
	db *gorm.DB
}

// NewTenantRepository 创建一个新的 TenantRepository 实例。
func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &tenantRepository{db: db}
}

// Create 在数据库中创建一个新的租户记录。
func (r *tenantRepository) Create(tenant *model.Tenant) error {
	return r.db.Create(tenant).Error
}

// FindByKeyHash 根据凭证摘要查找租户。
func (r *tenantRepository) FindByKeyHash(hash string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := r.db.Where("api_key_hash = ?", hash).First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// FindByTenantID 根据租户标识查找租户。
func (r *tenantRepository) FindByTenantID(tenantID string) (*model.Tenant, error) {
	var tenant model.Tenant
	err := r.db.Where("tenant_id = ?", tenantID).First(&tenant).Error
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}
