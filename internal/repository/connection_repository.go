package repository

import (
	"context"
	"errors"
	"fmt"
	"lifecircle_backend/internal/model"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConnectionRepository 连接图存储：有向边 + 原子建边
type ConnectionRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
	ctx   context.Context
}

func NewConnectionRepository(db *gorm.DB, rdb *redis.Client) *ConnectionRepository {
	return &ConnectionRepository{
		DB:    db,
		Redis: rdb,
		ctx:   context.Background(),
	}
}

// EstablishPair 原子建立 A→B、B→A 两条边，幂等。
// 单事务 + ON CONFLICT DO NOTHING：重复调用、并发调用都不会报错
// 也不会写出重复行；事务失败则一条边都不会留下。
// 返回本次是否真的新建了边（两条都已存在时为 false）。
func (r *ConnectionRepository) EstablishPair(userAID, userBID uint) (bool, error) {
	created := false
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		edges := []model.ConnectionEdge{
			{OwnerID: userAID, TargetID: userBID, CategoryFlags: model.CategoryFlags{}},
			{OwnerID: userBID, TargetID: userAID, CategoryFlags: model.CategoryFlags{}},
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edges)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		return nil
	})

	if err == nil && r.Redis != nil {
		// 清除双方的连接缓存
		r.Redis.Del(r.ctx, connectedIDsKey(userAID), connectedIDsKey(userBID))
	}
	return created, err
}

func (r *ConnectionRepository) Get(ownerID, targetID uint) (*model.ConnectionEdge, error) {
	var edge model.ConnectionEdge
	err := r.DB.First(&edge, "owner_id = ? AND target_id = ?", ownerID, targetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

func (r *ConnectionRepository) Exists(ownerID, targetID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.ConnectionEdge{}).
		Where("owner_id = ? AND target_id = ?", ownerID, targetID).
		Count(&count).Error
	return count > 0, err
}

// UpdateFlags 写回合并后的完整 flags，由 service 层做读-合并
func (r *ConnectionRepository) UpdateFlags(ownerID, targetID uint, flags model.CategoryFlags) error {
	return r.DB.Model(&model.ConnectionEdge{}).
		Where("owner_id = ? AND target_id = ?", ownerID, targetID).
		Updates(map[string]interface{}{
			"category_flags": flags,
			"updated_at":     time.Now(),
		}).Error
}

// Delete 删除一条有向边，返回是否真的删到了行
func (r *ConnectionRepository) Delete(ownerID, targetID uint) (bool, error) {
	res := r.DB.Where("owner_id = ? AND target_id = ?", ownerID, targetID).
		Delete(&model.ConnectionEdge{})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 && r.Redis != nil {
		r.Redis.Del(r.ctx, connectedIDsKey(ownerID), connectedIDsKey(targetID))
	}
	return res.RowsAffected > 0, nil
}

// ListConnections 已连接用户列表，可按昵称/邮箱过滤
func (r *ConnectionRepository) ListConnections(ownerID uint, query string) ([]model.User, error) {
	var users []model.User
	db := r.DB.Joins("JOIN connection_edges ON connection_edges.target_id = users.id").
		Where("connection_edges.owner_id = ?", ownerID)

	if query != "" {
		searchTerm := "%" + query + "%"
		db = db.Where("(users.name LIKE ? OR users.email LIKE ?)", searchTerm, searchTerm)
	}

	err := db.Find(&users).Error
	return users, err
}

// ConnectedIDs 只取已连接用户的 ID 列表
func (r *ConnectionRepository) ConnectedIDs(ownerID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.ConnectionEdge{}).
		Where("owner_id = ?", ownerID).
		Pluck("target_id", &ids).Error
	return ids, err
}

// ConnectedIDsCached 连接 ID 列表（带 Redis 缓存），事件流水线的只读入口
func (r *ConnectionRepository) ConnectedIDsCached(ownerID uint) ([]uint, error) {
	if r.Redis == nil {
		return r.ConnectedIDs(ownerID)
	}

	key := connectedIDsKey(ownerID)
	cached, err := r.Redis.SMembers(r.ctx, key).Result()
	if err == nil && len(cached) > 0 {
		var ids []uint
		for _, s := range cached {
			var id uint
			fmt.Sscanf(s, "%d", &id)
			if id > 0 {
				ids = append(ids, id)
			}
		}
		return ids, nil
	}

	// 缓存失效，回源数据库
	ids, err := r.ConnectedIDs(ownerID)
	if err == nil && len(ids) > 0 {
		pipe := r.Redis.Pipeline()
		for _, id := range ids {
			pipe.SAdd(r.ctx, key, id)
		}
		pipe.Expire(r.ctx, key, 24*time.Hour)
		pipe.Exec(r.ctx)
	} else if err == nil {
		// 防止缓存穿透：存哨兵值并设置短过期时间
		r.Redis.SAdd(r.ctx, key, 0)
		r.Redis.Expire(r.ctx, key, 5*time.Minute)
	}
	return ids, err
}

// OwnedTargetsIn 批量集合查询：owner 的出边落在候选集合里的有哪些
func (r *ConnectionRepository) OwnedTargetsIn(ownerID uint, candidateIDs []uint) (map[uint]bool, error) {
	result := make(map[uint]bool)
	if len(candidateIDs) == 0 {
		return result, nil
	}
	var ids []uint
	err := r.DB.Model(&model.ConnectionEdge{}).
		Where("owner_id = ? AND target_id IN ?", ownerID, candidateIDs).
		Pluck("target_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		result[id] = true
	}
	return result, nil
}

func connectedIDsKey(userID uint) string {
	return fmt.Sprintf("connections:ids:%d", userID)
}
