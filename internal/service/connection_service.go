package service

import (
	"fmt"
	"lifecircle_backend/internal/config"
	"lifecircle_backend/internal/model"
	"lifecircle_backend/internal/util"
	"lifecircle_backend/pkg/logger"
	"lifecircle_backend/pkg/monitoring"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// SendResultCode 发送申请的结果码
type SendResultCode string

const (
	SendResultRequestSent           SendResultCode = "request_sent"
	SendResultConnectionEstablished SendResultCode = "connection_established"
)

// SendResult 发送结果 双向申请合并时没有 RequestID
type SendResult struct {
	Code      SendResultCode `json:"code"`
	RequestID string         `json:"requestId,omitempty"`
}

// EdgeRef 一条有向边的标识
type EdgeRef struct {
	OwnerID  uint `json:"ownerId"`
	TargetID uint `json:"targetId"`
}

// EdgePair 接受申请后新建的两条边
type EdgePair struct {
	Forward EdgeRef `json:"forward"`
	Reverse EdgeRef `json:"reverse"`
}

// ConnectionStatus 批量状态查询的单条结果
type ConnectionStatus struct {
	UserID            uint `json:"userId"`
	IsConnected       bool `json:"isConnected"`
	HasPendingRequest bool `json:"hasPendingRequest"`
}

// ConnectionService 连接申请的编排核心：发送/接受/过期/双向申请合并。
// 不跨存储调用持有进程内锁，正确性靠存储层的唯一约束和
// EstablishPair 的幂等性兜底。
type ConnectionService struct {
	Connections ConnectionStore
	Requests    RequestStore
	Users       UserDirectory
	Notifier    Notifier
	Config      *config.Config
}

func NewConnectionService(connections ConnectionStore, requests RequestStore, users UserDirectory, notifier Notifier, cfg *config.Config) *ConnectionService {
	return &ConnectionService{
		Connections: connections,
		Requests:    requests,
		Users:       users,
		Notifier:    notifier,
		Config:      cfg,
	}
}

// SendRequest 发送连接申请。
// 前置检查链：附言长度 → 自连 → 目标存在 → 已连接 → 同方向在途申请。
// 双向申请检测：对方已有一条发给我的在途申请时走合并路径——删除对方的
// 申请、原子建立两条边、通知双方，结果码为 connection_established。
func (s *ConnectionService) SendRequest(senderID, receiverID uint, message string) (*SendResult, error) {
	if utf8.RuneCountInString(message) > s.Config.Connections.MaxMessageLength {
		return nil, util.ErrMessageTooLong
	}
	if senderID == receiverID {
		return nil, util.ErrSelfRequest
	}

	receiver, err := s.Users.FindByID(receiverID)
	if err != nil {
		return nil, s.storeErr("send: lookup receiver", err)
	}
	if receiver == nil || receiver.Disabled {
		return nil, util.ErrTargetNotFound
	}

	connected, err := s.Connections.Exists(senderID, receiverID)
	if err != nil {
		return nil, s.storeErr("send: check existing edge", err)
	}
	if connected {
		return nil, util.ErrAlreadyConnected
	}

	now := time.Now()

	pending, err := s.Requests.FindLive(senderID, receiverID, now)
	if err != nil {
		return nil, s.storeErr("send: check pending request", err)
	}
	if pending != nil {
		return nil, util.ErrRequestAlreadyPending
	}

	// 双向申请检测：对方先发了申请，直接合并成连接
	opposite, err := s.Requests.FindLive(receiverID, senderID, now)
	if err != nil {
		return nil, s.storeErr("send: check opposite request", err)
	}
	if opposite != nil {
		return s.mergeOpposite(senderID, receiver, opposite)
	}

	req := &model.ConnectionRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Message:    message,
		ExpiresAt:  now.Add(s.Config.Connections.RequestTTL),
	}
	if err := s.Requests.Create(req); err != nil {
		if _, ok := util.AsAppError(err); ok {
			// 并发输家：唯一索引把第二条同方向申请挡掉了
			return nil, err
		}
		return nil, s.storeErr("send: create request", err)
	}

	sender, _ := s.Users.FindByID(senderID)
	s.notify(&model.Notification{
		TargetUserID: receiverID,
		Kind:         model.NotificationRequestReceived,
		Title:        "新的连接申请",
		Body:         fmt.Sprintf("%s 想与你建立连接", userName(sender)),
		Payload: model.NotificationPayload{
			RelatedUserID:   senderID,
			RelatedUserName: userName(sender),
			DeepLink:        "/connections/requests",
		},
	})

	return &SendResult{Code: SendResultRequestSent, RequestID: req.ID}, nil
}

// mergeOpposite 双向申请合并路径。
// 顺序保持为：先删对方的申请，再建边。两步之间失败会丢掉双方的
// 邀请状态且不产生连接——这是既定行为，这里只把现场记进日志。
func (s *ConnectionService) mergeOpposite(senderID uint, receiver *model.User, opposite *model.ConnectionRequest) (*SendResult, error) {
	if err := s.Requests.Delete(opposite.ID); err != nil {
		return nil, s.storeErr("merge: delete opposite request", err)
	}

	created, err := s.Connections.EstablishPair(senderID, receiver.ID)
	if err != nil {
		logger.Log.Error("merge: edge establishment failed after opposite request deleted, both invitations lost",
			zap.Uint("senderId", senderID),
			zap.Uint("receiverId", receiver.ID),
			zap.String("oppositeRequestId", opposite.ID),
			zap.Error(err))
		return nil, util.ErrEdgeEstablishment
	}
	if created {
		monitoring.ConnectionsEstablished.Inc()
	}
	monitoring.RequestsMerged.Inc()

	sender, _ := s.Users.FindByID(senderID)
	s.notify(&model.Notification{
		TargetUserID: senderID,
		Kind:         model.NotificationConnectionEstablished,
		Title:        "连接已建立",
		Body:         fmt.Sprintf("你和 %s 已互相连接", receiver.Name),
		Payload: model.NotificationPayload{
			RelatedUserID:   receiver.ID,
			RelatedUserName: receiver.Name,
			DeepLink:        fmt.Sprintf("/profile/%d", receiver.ID),
		},
	})
	s.notify(&model.Notification{
		TargetUserID: receiver.ID,
		Kind:         model.NotificationConnectionEstablished,
		Title:        "连接已建立",
		Body:         fmt.Sprintf("你和 %s 已互相连接", userName(sender)),
		Payload: model.NotificationPayload{
			RelatedUserID:   senderID,
			RelatedUserName: userName(sender),
			DeepLink:        fmt.Sprintf("/profile/%d", senderID),
		},
	})

	return &SendResult{Code: SendResultConnectionEstablished}, nil
}

// AcceptRequest 接受连接申请。
// 申请不存在或接收者不是自己都返回 request_not_found，不设单独的
// forbidden 码，避免向非接收者泄露申请的存在。
// 顺序约定：先建边、后删申请——建边失败时申请原样保留，可重试。
func (s *ConnectionService) AcceptRequest(requestID string, accepterID uint) (*EdgePair, error) {
	req, err := s.Requests.FindByID(requestID)
	if err != nil {
		return nil, s.storeErr("accept: lookup request", err)
	}
	if req == nil || req.ReceiverID != accepterID {
		return nil, util.ErrRequestNotFound
	}

	if req.Expired(time.Now()) {
		// 惰性清理：发现即删除
		if err := s.Requests.Delete(req.ID); err != nil {
			return nil, s.storeErr("accept: purge expired request", err)
		}
		return nil, util.ErrRequestExpired
	}

	connected, err := s.Connections.Exists(accepterID, req.SenderID)
	if err != nil {
		return nil, s.storeErr("accept: check existing edge", err)
	}
	if connected {
		// 边已存在（例如双方同时点了接受），申请行已是冗余，清理掉
		if err := s.Requests.Delete(req.ID); err != nil {
			logger.Log.Warn("accept: cleanup of redundant request failed",
				zap.String("requestId", req.ID), zap.Error(err))
		}
		return nil, util.ErrAlreadyConnected
	}

	created, err := s.Connections.EstablishPair(accepterID, req.SenderID)
	if err != nil {
		logger.Log.Error("accept: edge establishment failed, request left intact for retry",
			zap.String("requestId", req.ID),
			zap.Uint("accepterId", accepterID),
			zap.Uint("senderId", req.SenderID),
			zap.Error(err))
		return nil, util.ErrEdgeEstablishment
	}
	if created {
		monitoring.ConnectionsEstablished.Inc()
	}

	if err := s.Requests.Delete(req.ID); err != nil {
		// 边已经建好，残留的申请行下次会被 already_connected 分支清理
		logger.Log.Warn("accept: request deletion failed after establishment",
			zap.String("requestId", req.ID), zap.Error(err))
	}

	accepter, _ := s.Users.FindByID(accepterID)
	s.notify(&model.Notification{
		TargetUserID: req.SenderID,
		Kind:         model.NotificationRequestAccepted,
		Title:        "连接申请已通过",
		Body:         fmt.Sprintf("%s 接受了你的连接申请", userName(accepter)),
		Payload: model.NotificationPayload{
			RelatedUserID:   accepterID,
			RelatedUserName: userName(accepter),
			DeepLink:        fmt.Sprintf("/profile/%d", accepterID),
		},
	})

	return &EdgePair{
		Forward: EdgeRef{OwnerID: accepterID, TargetID: req.SenderID},
		Reverse: EdgeRef{OwnerID: req.SenderID, TargetID: accepterID},
	}, nil
}

// ListPendingRequests 收件箱：未过期的收到的申请，过期行顺手清理
func (s *ConnectionService) ListPendingRequests(receiverID uint) ([]model.ConnectionRequest, error) {
	reqs, err := s.Requests.ListPendingForReceiver(receiverID, time.Now())
	if err != nil {
		return nil, s.storeErr("list pending requests", err)
	}
	return reqs, nil
}

// DeleteConnection 删除自己的出边；反向边尽力删除，失败只记日志
func (s *ConnectionService) DeleteConnection(ownerID, targetID uint) error {
	deleted, err := s.Connections.Delete(ownerID, targetID)
	if err != nil {
		return s.storeErr("delete connection", err)
	}
	if !deleted {
		return util.ErrEdgeNotFound
	}

	if _, err := s.Connections.Delete(targetID, ownerID); err != nil {
		logger.Log.Warn("reverse edge deletion failed, directions now diverge",
			zap.Uint("ownerId", ownerID),
			zap.Uint("targetId", targetID),
			zap.Error(err))
	}
	return nil
}

// ConnectionStatuses 批量状态查询：两次集合查询建查找集，再按输入顺序映射
func (s *ConnectionService) ConnectionStatuses(viewerID uint, candidateIDs []uint) ([]ConnectionStatus, error) {
	if len(candidateIDs) > s.Config.Connections.StatusBatchLimit {
		return nil, &util.AppError{
			Kind:    util.KindValidation,
			Code:    "too_many_candidates",
			Message: fmt.Sprintf("单次最多查询 %d 个用户", s.Config.Connections.StatusBatchLimit),
		}
	}

	connected, err := s.Connections.OwnedTargetsIn(viewerID, candidateIDs)
	if err != nil {
		return nil, s.storeErr("status: fetch edges", err)
	}
	pending, err := s.Requests.PendingTargetsIn(viewerID, candidateIDs, time.Now())
	if err != nil {
		return nil, s.storeErr("status: fetch pending requests", err)
	}

	statuses := make([]ConnectionStatus, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		statuses = append(statuses, ConnectionStatus{
			UserID:            id,
			IsConnected:       connected[id],
			HasPendingRequest: pending[id],
		})
	}
	return statuses, nil
}

// ListConnections 已连接用户列表
func (s *ConnectionService) ListConnections(ownerID uint, query string) ([]model.User, error) {
	users, err := s.Connections.ListConnections(ownerID, query)
	if err != nil {
		return nil, s.storeErr("list connections", err)
	}
	return users, nil
}

// ConnectedIDs 已连接用户 ID 列表，事件流水线的只读授权入口
func (s *ConnectionService) ConnectedIDs(ownerID uint) ([]uint, error) {
	ids, err := s.Connections.ConnectedIDsCached(ownerID)
	if err != nil {
		return nil, s.storeErr("connected ids", err)
	}
	return ids, nil
}

// PurgeExpiredRequests 后台清扫入口，存储卫生优化；正确性不依赖它
func (s *ConnectionService) PurgeExpiredRequests() (int64, error) {
	return s.Requests.DeleteExpiredBefore(time.Now())
}

// storeErr 存储失败：细节进日志，对外只给通用错误
func (s *ConnectionService) storeErr(op string, err error) error {
	logger.Log.Error("store operation failed", zap.String("op", op), zap.Error(err))
	return util.ErrStoreFailure
}

func (s *ConnectionService) notify(n *model.Notification) {
	if s.Notifier == nil {
		return
	}
	// 通知只管产出，投递失败不影响图操作
	if err := s.Notifier.Emit(n); err != nil {
		logger.Log.Warn("notification emit failed",
			zap.Uint("targetUserId", n.TargetUserID),
			zap.String("kind", string(n.Kind)),
			zap.Error(err))
	}
}

func userName(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.Name
}
