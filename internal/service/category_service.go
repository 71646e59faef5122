package service

import (
	"lifecircle_backend/internal/model"
	"lifecircle_backend/internal/util"
	"lifecircle_backend/pkg/logger"
	"sort"

	"go.uber.org/zap"
)

// CategoryService 分类可见性开关编辑。
// 只有 owner 能改自己的出边，纯读-合并-写，无需跨边协调。
type CategoryService struct {
	Connections ConnectionStore
	Users       UserDirectory
}

func NewCategoryService(connections ConnectionStore, users UserDirectory) *CategoryService {
	return &CategoryService{
		Connections: connections,
		Users:       users,
	}
}

// UpdateFlags 把 requested 合并进边上已有的 flags。
// 任何一个 key 不在 owner 当前开启的分类里，整个调用拒绝，不做部分合并。
// 校验只发生在写入时：边上遗留的、用户后来关闭的分类 key 不会被清除。
func (s *CategoryService) UpdateFlags(ownerID, targetID uint, requested model.CategoryFlags) (model.CategoryFlags, error) {
	edge, err := s.Connections.Get(ownerID, targetID)
	if err != nil {
		return nil, s.storeErr("update flags: lookup edge", err)
	}
	if edge == nil {
		return nil, util.ErrEdgeNotFound
	}

	owner, err := s.Users.FindByID(ownerID)
	if err != nil || owner == nil {
		return nil, s.storeErr("update flags: lookup owner", err)
	}

	var invalid []string
	for key := range requested {
		if !owner.EnabledCategories.Has(key) {
			invalid = append(invalid, key)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, util.CategoryNotEnabled(invalid)
	}

	// 合并而不是整表覆盖：没动到的 key 保留原值
	merged := edge.CategoryFlags.Clone()
	for key, value := range requested {
		merged[key] = value
	}

	if err := s.Connections.UpdateFlags(ownerID, targetID, merged); err != nil {
		return nil, s.storeErr("update flags: write back", err)
	}
	return merged, nil
}

func (s *CategoryService) storeErr(op string, err error) error {
	logger.Log.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return util.ErrStoreFailure
}
