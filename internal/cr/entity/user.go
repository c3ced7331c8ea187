package entity

import (
	"time"
)

// User 系统用户
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	Email        string    `json:"email" gorm:"size:128;not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"size:128;not null"`
	Name         string    `json:"name" gorm:"size:128;not null"`
	Role         string    `json:"role" gorm:"size:16;not null;default:USER"`
	Division     string    `json:"division" gorm:"size:64"`
	Active       bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// 用户角色常量
const (
	RoleUser      = "USER"
	RoleManager   = "MANAGER"
	RoleVP        = "VP"
	RoleManagerIT = "MANAGER_IT"
	RoleDev       = "DEV"
)

// AllRoles 全部合法角色
var AllRoles = []string{RoleUser, RoleManager, RoleVP, RoleManagerIT, RoleDev}

// IsValidRole 角色是否合法
func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}
