package repository

import (
	"errors"
	"lifecircle_backend/internal/model"
	"lifecircle_backend/internal/util"
	"lifecircle_backend/pkg/monitoring"
	"time"

	"gorm.io/gorm"
)

// RequestRepository 连接申请存储
// 过期是惰性清理的：任何读路径碰到 expiresAt 已过的行，先删行再当"不存在"处理。
type RequestRepository struct {
	DB *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{DB: db}
}

// Create 插入新申请 (sender_id, receiver_id) 唯一索引兜底并发：
// 两个同方向的并发插入只有一个成功，输家拿到 request_already_pending。
func (r *RequestRepository) Create(req *model.ConnectionRequest) error {
	err := r.DB.Create(req).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return util.ErrRequestAlreadyPending
	}
	return err
}

// FindByID 原样返回行，不做存活过滤——接受路径需要区分
// "找到但已过期"（request_expired）和"根本不存在"（request_not_found）。
func (r *RequestRepository) FindByID(id string) (*model.ConnectionRequest, error) {
	var req model.ConnectionRequest
	err := r.DB.First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// FindLive 查某个方向的在途申请，读到过期行时顺手删除
func (r *RequestRepository) FindLive(senderID, receiverID uint, now time.Time) (*model.ConnectionRequest, error) {
	var req model.ConnectionRequest
	err := r.DB.First(&req, "sender_id = ? AND receiver_id = ?", senderID, receiverID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if req.Expired(now) {
		if err := r.Delete(req.ID); err != nil {
			return nil, err
		}
		monitoring.ExpiredRequestsPurged.Inc()
		return nil, nil
	}
	return &req, nil
}

// Delete 硬删除，唯一索引语义依赖行真正消失
func (r *RequestRepository) Delete(id string) error {
	return r.DB.Delete(&model.ConnectionRequest{}, "id = ?", id).Error
}

// ListPendingForReceiver 收件箱：接收者的在途申请，过期行就地清理
func (r *RequestRepository) ListPendingForReceiver(receiverID uint, now time.Time) ([]model.ConnectionRequest, error) {
	var reqs []model.ConnectionRequest
	err := r.DB.Preload("Sender").
		Where("receiver_id = ?", receiverID).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return r.purgeExpired(reqs, now)
}

// PendingTargetsIn 批量集合查询：sender 发给候选集合里哪些人的申请还在途。
// 一次取回所有命中行，过期的就地清理，剩下的建查找集。
func (r *RequestRepository) PendingTargetsIn(senderID uint, candidateIDs []uint, now time.Time) (map[uint]bool, error) {
	result := make(map[uint]bool)
	if len(candidateIDs) == 0 {
		return result, nil
	}

	var reqs []model.ConnectionRequest
	err := r.DB.Where("sender_id = ? AND receiver_id IN ?", senderID, candidateIDs).
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}

	live, err := r.purgeExpired(reqs, now)
	if err != nil {
		return nil, err
	}
	for _, req := range live {
		result[req.ReceiverID] = true
	}
	return result, nil
}

// DeleteExpiredBefore 后台清扫，纯粹的存储卫生优化；正确性不依赖它
func (r *RequestRepository) DeleteExpiredBefore(now time.Time) (int64, error) {
	res := r.DB.Where("expires_at <= ?", now).Delete(&model.ConnectionRequest{})
	return res.RowsAffected, res.Error
}

func (r *RequestRepository) purgeExpired(reqs []model.ConnectionRequest, now time.Time) ([]model.ConnectionRequest, error) {
	live := reqs[:0]
	var expiredIDs []string
	for _, req := range reqs {
		if req.Expired(now) {
			expiredIDs = append(expiredIDs, req.ID)
			continue
		}
		live = append(live, req)
	}
	if len(expiredIDs) > 0 {
		if err := r.DB.Delete(&model.ConnectionRequest{}, "id IN ?", expiredIDs).Error; err != nil {
			return nil, err
		}
		monitoring.ExpiredRequestsPurged.Add(float64(len(expiredIDs)))
	}
	return live, nil
}
