package repository

import "gorm.io/gorm"

// applyPagination 给列表查询套分页。
//
// pageSize<=0 视为不分页（统计类查询会这么用）；页码下限钳到 1。
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	if page < 1 {
		page = 1
	}
	return query.Offset((page - 1) * pageSize).Limit(pageSize)
}
