package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CategoryFlags 每条边上的分类可见性开关，JSON 对象存储
// 未显式设置的分类一律视为 false。写入时校验 key 必须在 owner 的
// enabledCategories 里；历史遗留的 key（用户后来关闭了该分类）读取时原样保留。
type CategoryFlags map[string]bool

func (f CategoryFlags) Value() (driver.Value, error) {
	if f == nil {
		f = CategoryFlags{}
	}
	return json.Marshal(f)
}

func (f *CategoryFlags) Scan(value interface{}) error {
	if value == nil {
		*f = CategoryFlags{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CategoryFlags", value)
	}
	if len(data) == 0 {
		*f = CategoryFlags{}
		return nil
	}
	return json.Unmarshal(data, f)
}

// Clone 返回副本，合并写回时避免共享底层 map
func (f CategoryFlags) Clone() CategoryFlags {
	out := make(CategoryFlags, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// ConnectionEdge 连接边表 有向边，(owner_id, target_id) 唯一
// 互为连接 = 两个方向的边都存在；flags 只能由 owner 修改
type ConnectionEdge struct {
	OwnerID       uint          `gorm:"primaryKey;autoIncrement:false" json:"ownerId"`
	TargetID      uint          `gorm:"primaryKey;autoIncrement:false" json:"targetId"`
	CategoryFlags CategoryFlags `gorm:"type:json" json:"categoryFlags"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (ConnectionEdge) TableName() string {
	return "connection_edges"
}

// ConnectionRequest 连接申请表
// 行是硬删除的：接受、合并或惰性过期清理时整行消失，
// 因此 (sender_id, receiver_id) 唯一索引即等价于"至多一条在途申请"。
type ConnectionRequest struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SenderID   uint      `gorm:"not null;uniqueIndex:idx_request_pair" json:"senderId"`
	Sender     User      `gorm:"foreignKey:SenderID;references:ID;constraint:false" json:"sender,omitempty"`
	ReceiverID uint      `gorm:"not null;uniqueIndex:idx_request_pair" json:"receiverId"`
	Receiver   User      `gorm:"foreignKey:ReceiverID;references:ID;constraint:false" json:"receiver,omitempty"`
	Message    string    `gorm:"size:255" json:"message"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	ExpiresAt  time.Time `gorm:"index;not null" json:"expiresAt"`
}

func (ConnectionRequest) TableName() string {
	return "connection_requests"
}

func (r *ConnectionRequest) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = GenerateUUID()
	}
	return
}

// Expired 申请存活判定：now < expiresAt 才算在途
func (r *ConnectionRequest) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
