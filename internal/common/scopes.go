package common

import "gorm.io/gorm"

// ActiveOnly 仅查询活跃状态的记录
// 使用方法：db.Scopes(common.ActiveOnly()).Find(&instances)
func ActiveOnly() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", "active")
	}
}

// ByPod 按小组ID过滤
// 使用方法：db.Scopes(common.ByPod(podID)).Find(&instances)
func ByPod(podID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("assigned_pod_id = ?", podID)
	}
}

// Paginate 通用分页Scope
// 使用方法：db.Scopes(common.Paginate(req)).Find(&items)
func Paginate(req *PaginationRequest) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if req == nil {
			return db
		}
		return db.Offset(req.GetOffset()).Limit(req.GetPageSize())
	}
}
