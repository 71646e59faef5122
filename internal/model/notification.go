package model

// NotificationKind 通知类型
type NotificationKind string

const (
	NotificationRequestReceived       NotificationKind = "request_received"
	NotificationRequestAccepted       NotificationKind = "request_accepted"
	NotificationConnectionEstablished NotificationKind = "connection_established"
)

// NotificationPayload 通知附带数据，供客户端跳转
type NotificationPayload struct {
	RelatedUserID   uint   `json:"relatedUserId"`
	RelatedUserName string `json:"relatedUserName,omitempty"`
	DeepLink        string `json:"deepLink"`
}

// Notification 通知记录 本服务只负责生成，投递由外部通知管道消费
type Notification struct {
	TargetUserID uint                `json:"targetUserId"`
	Kind         NotificationKind    `json:"kind"`
	Title        string              `json:"title"`
	Body         string              `json:"body"`
	Payload      NotificationPayload `json:"payload"`
}
