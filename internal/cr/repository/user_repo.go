package repository

import (
	"context"
	"errors"

	"github.com/sagara-io/crflow/internal/cr/entity"
	"gorm.io/gorm"
)

// UserRepository 用户仓库
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID 根据ID查找用户
func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByEmail 根据邮箱查找用户
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByIDs 批量查找用户
func (r *UserRepository) FindByIDs(ctx context.Context, ids []string) ([]entity.User, error) {
	var users []entity.User
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

// List 按角色/部门筛选用户
func (r *UserRepository) List(ctx context.Context, filters map[string]string) ([]entity.User, error) {
	query := r.db.WithContext(ctx).Model(&entity.User{}).Where("active = ?", true)

	if role := filters["role"]; role != "" {
		query = query.Where("role = ?", role)
	}
	if division := filters["division"]; division != "" {
		query = query.Where("division = ?", division)
	}

	var users []entity.User
	err := query.Order("name ASC").Find(&users).Error
	return users, err
}

// ListByRole 查找某角色的全部活跃用户
func (r *UserRepository) ListByRole(ctx context.Context, role string) ([]entity.User, error) {
	var users []entity.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND active = ?", role, true).
		Find(&users).Error
	return users, err
}

// ListByRoleAndDivision 查找某部门内某角色的全部活跃用户
func (r *UserRepository) ListByRoleAndDivision(ctx context.Context, role, division string) ([]entity.User, error) {
	var users []entity.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND division = ? AND active = ?", role, division, true).
		Find(&users).Error
	return users, err
}

// Create 创建用户
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Update 更新用户
func (r *UserRepository) Update(ctx context.Context, user *entity.User) error {
	return r.db.WithContext(ctx).Save(user).Error
}
