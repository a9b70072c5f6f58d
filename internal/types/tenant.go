package types

import "time"

import "gorm.io/gorm"

const (
	InitDefaultTenantID uint = 1
)

// Tenant scopes storage and API-key auth for a group of users, ambient
// multi-tenancy carried over from the teacher's composition root.
type Tenant struct {
	ID          uint   `yaml:"id" json:"id" gorm:"primaryKey"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	APIKey      string `yaml:"api_key" json:"api_key"`
	Status      string `yaml:"status" json:"status" gorm:"default:'active'"`

	StorageQuota int64 `yaml:"storage_quota" json:"storage_quota" gorm:"default:10737418240"`
	StorageUsed  int64 `yaml:"storage_used" json:"storage_used" gorm:"default:0"`

	CreatedAt time.Time      `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time      `yaml:"updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `yaml:"deleted_at" json:"deleted_at" gorm:"index"`
}

func (Tenant) TableName() string { return "tenants" }
