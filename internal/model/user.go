// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 用户角色常量。
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User 对应于数据库中的 'users' 表。
type User struct {
	ID           string `gorm:"type:char(36);primaryKey" json:"id"`
	Username     string `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"`
	// Role 取值为 "user" 或 "admin"。
	Role     string `gorm:"type:varchar(20);not null;default:user" json:"role"`
	IsActive bool   `gorm:"not null;default:true" json:"isActive"`
}

// BeforeCreate 在插入前为用户生成 UUID 主键。
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}
