package service

import (
	"lifecircle_backend/internal/model"
	"time"
)

// UserDirectory 用户目录只读接口
type UserDirectory interface {
	FindByID(id uint) (*model.User, error)
	FindByIDs(ids []uint) ([]model.User, error)
}

// RequestStore 申请存储接口 读路径需要实现惰性过期清理
type RequestStore interface {
	Create(req *model.ConnectionRequest) error
	FindByID(id string) (*model.ConnectionRequest, error)
	FindLive(senderID, receiverID uint, now time.Time) (*model.ConnectionRequest, error)
	Delete(id string) error
	ListPendingForReceiver(receiverID uint, now time.Time) ([]model.ConnectionRequest, error)
	PendingTargetsIn(senderID uint, candidateIDs []uint, now time.Time) (map[uint]bool, error)
	DeleteExpiredBefore(now time.Time) (int64, error)
}

// ConnectionStore 连接图存储接口 EstablishPair 必须幂等且全有或全无
type ConnectionStore interface {
	EstablishPair(userAID, userBID uint) (bool, error)
	Get(ownerID, targetID uint) (*model.ConnectionEdge, error)
	Exists(ownerID, targetID uint) (bool, error)
	UpdateFlags(ownerID, targetID uint, flags model.CategoryFlags) error
	Delete(ownerID, targetID uint) (bool, error)
	ListConnections(ownerID uint, query string) ([]model.User, error)
	ConnectedIDsCached(ownerID uint) ([]uint, error)
	OwnedTargetsIn(ownerID uint, candidateIDs []uint) (map[uint]bool, error)
}

// Notifier 通知出口 投递由外部管道负责，这里只产出记录
type Notifier interface {
	Emit(n *model.Notification) error
}
