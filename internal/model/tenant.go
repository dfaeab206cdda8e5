package model

import "time"

// Tenant 对应于数据库中的 'tenants' 表。
// 凭证只保存单向摘要，原始 API key 仅在创建时返回一次。
type Tenant struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	TenantID   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"tenantId"`
	Name       string    `gorm:"type:varchar(100);not null" json:"name"`
	APIKeyHash string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Tenant) TableName() string {
	return "tenants"
}

// TenantCredentials 是租户创建接口返回的一次性凭证。
type TenantCredentials struct {
	TenantID string `json:"tenant_id"`
	APIKey   string `json:"api_key"`
	JWT      string `json:"jwt"`
}
