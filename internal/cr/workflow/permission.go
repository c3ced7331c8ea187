package workflow

import (
	"github.com/sagara-io/crflow/internal/cr/entity"
)

// Permissions 某个用户对某个请求的完整能力集，权限判断集中在 Evaluate 一处
type Permissions struct {
	CanEdit            bool `json:"canEdit"`
	CanSubmit          bool `json:"canSubmit"`
	CanApproveManager  bool `json:"canApproveManager"`
	CanApproveVP       bool `json:"canApproveVP"`
	CanAssign          bool `json:"canAssign"`
	CanComplete        bool `json:"canComplete"`
	CanDelete          bool `json:"canDelete"`
	CanUploadDocuments bool `json:"canUploadDocuments"`
}

// Evaluate 计算用户对请求的能力集
// assigned 表示该用户是否在当前有效的开发分派名单内
func Evaluate(user *entity.User, req *entity.ChangeRequest, assigned bool) Permissions {
	var p Permissions

	owner := user.ID == req.CreatedBy
	editable := EditableStatuses[req.Status]

	if owner && editable {
		p.CanEdit = true
		p.CanUploadDocuments = true
	}
	if owner && req.Status == entity.StatusDraft {
		p.CanSubmit = true
		p.CanDelete = true
	}
	if owner && (req.Status == entity.StatusRevisionByManager || req.Status == entity.StatusRevisionByVP) {
		// 修订状态下的提交走 resubmit
		p.CanSubmit = true
	}

	switch user.Role {
	case entity.RoleManager:
		p.CanApproveManager = req.Status == entity.StatusPendingManager && user.Division == req.Division
	case entity.RoleVP:
		p.CanApproveVP = req.Status == entity.StatusPendingVP
	case entity.RoleManagerIT:
		p.CanAssign = req.Status == entity.StatusApproved
		p.CanComplete = req.Status == entity.StatusInProgress
	case entity.RoleDev:
		p.CanComplete = req.Status == entity.StatusInProgress && assigned
	}

	return p
}

// CanDeleteDocument 文档删除规则：系统生成文档永不可删，用户附件仅所有者在可编辑状态下可删
func CanDeleteDocument(user *entity.User, req *entity.ChangeRequest, doc *entity.Document) bool {
	if entity.IsSystemDocument(doc.FileType) {
		return false
	}
	return user.ID == req.CreatedBy && EditableStatuses[req.Status]
}

// CanView 列表与详情的可见范围
// USER 仅见自己的；MANAGER/VP 见本部门及待本层审批的；MANAGER_IT 见已批准之后的；DEV 见被分派的
func CanView(user *entity.User, req *entity.ChangeRequest, assigned bool) bool {
	if user.ID == req.CreatedBy {
		return true
	}
	switch user.Role {
	case entity.RoleManager:
		return user.Division == req.Division
	case entity.RoleVP:
		return req.Status != entity.StatusDraft
	case entity.RoleManagerIT:
		switch req.Status {
		case entity.StatusApproved, entity.StatusAssigned, entity.StatusInProgress, entity.StatusCompleted:
			return true
		}
		return false
	case entity.RoleDev:
		return assigned
	}
	return false
}
