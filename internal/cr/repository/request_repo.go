package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sagara-io/crflow/internal/cr/entity"
	"gorm.io/gorm"
)

// RequestRepository 变更请求仓库
type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// 排序字段白名单，防 SQL 注入
var sortColumns = map[string]string{
	"createdAt":  "created_at",
	"updatedAt":  "updated_at",
	"title":      "title",
	"status":     "status",
	"targetDate": "target_date",
}

// FindAll 查询请求列表
// filters: status / search / created_by / division / status_in / assigned_to / sort_by / sort_order
func (r *RequestRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ChangeRequest, int64, error) {
	var items []entity.ChangeRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ChangeRequest{})

	if status := filters["status"]; status != "" {
		query = query.Where("change_requests.status = ?", status)
	}
	if statusIn := filters["status_in"]; statusIn != "" {
		query = query.Where("change_requests.status IN ?", strings.Split(statusIn, ","))
	}
	if createdBy := filters["created_by"]; createdBy != "" {
		query = query.Where("created_by = ?", createdBy)
	}
	if division := filters["division"]; division != "" {
		query = query.Where("division = ?", division)
	}
	if assignedTo := filters["assigned_to"]; assignedTo != "" {
		query = query.Joins("JOIN developer_assignments da ON da.request_id = change_requests.id").
			Where("da.developer_id = ? AND da.active = ?", assignedTo, true)
	}
	if search := filters["search"]; search != "" {
		query = query.Where("title ILIKE ? OR code ILIKE ?", "%"+search+"%", "%"+search+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column := sortColumns[filters["sort_by"]]
	if column == "" {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(filters["sort_order"], "asc") {
		direction = "ASC"
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Creator").
		Order(fmt.Sprintf("change_requests.%s %s", column, direction)).
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID 根据ID查找请求（含日志、分派、文档）
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*entity.ChangeRequest, error) {
	var req entity.ChangeRequest
	err := r.db.WithContext(ctx).
		Preload("Creator").
		Preload("ApprovalLogs", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("ApprovalLogs.Approver").
		Preload("Assignments", "active = ?", true).
		Preload("Assignments.Developer").
		Preload("Documents").
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// FindLite 仅查主记录，用于状态与权限校验
func (r *RequestRepository) FindLite(ctx context.Context, id string) (*entity.ChangeRequest, error) {
	var req entity.ChangeRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// Create 创建请求
func (r *RequestRepository) Create(ctx context.Context, req *entity.ChangeRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// Update 更新请求
func (r *RequestRepository) Update(ctx context.Context, req *entity.ChangeRequest) error {
	return r.db.WithContext(ctx).Save(req).Error
}

// Delete 删除请求及其从属记录
func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("request_id = ?", id).Delete(&entity.ApprovalLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("request_id = ?", id).Delete(&entity.DeveloperAssignment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("request_id = ?", id).Delete(&entity.Document{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&entity.ChangeRequest{}).Error
	})
}

// IsAssigned 用户是否在请求的有效分派名单内
func (r *RequestRepository) IsAssigned(ctx context.Context, requestID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.DeveloperAssignment{}).
		Where("request_id = ? AND developer_id = ? AND active = ?", requestID, userID, true).
		Count(&count).Error
	return count > 0, err
}

// CountByStatus 按状态统计（可限定创建人或部门）
func (r *RequestRepository) CountByStatus(ctx context.Context, filters map[string]string, statuses ...string) (int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.ChangeRequest{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	if createdBy := filters["created_by"]; createdBy != "" {
		query = query.Where("created_by = ?", createdBy)
	}
	if division := filters["division"]; division != "" {
		query = query.Where("division = ?", division)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// CountDecidedSince 统计某时间后由某人作出的某动作次数（月度审批统计用）
func (r *RequestRepository) CountDecidedSince(ctx context.Context, approverID, action string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.ApprovalLog{}).
		Where("approver_id = ? AND action = ? AND created_at >= ?", approverID, action, since).
		Count(&count).Error
	return count, err
}

// CountAssignedByStatus 统计某开发名下各状态的请求数
func (r *RequestRepository) CountAssignedByStatus(ctx context.Context, developerID string, statuses ...string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.ChangeRequest{}).
		Joins("JOIN developer_assignments da ON da.request_id = change_requests.id").
		Where("da.developer_id = ? AND da.active = ?", developerID, true).
		Where("change_requests.status IN ?", statuses).
		Count(&count).Error
	return count, err
}

// GenerateCode 生成请求编码 CR-{year}-{4位}
func (r *RequestRepository) GenerateCode(ctx context.Context) (string, error) {
	year := time.Now().Format("2006")
	prefix := fmt.Sprintf("CR-%s-", year)

	var maxCode string
	err := r.db.WithContext(ctx).
		Model(&entity.ChangeRequest{}).
		Select("COALESCE(MAX(code), '')").
		Where("code LIKE ?", prefix+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(maxCode, "CR-"+year+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("CR-%s-%04d", year, seq), nil
}
