package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CategorySet 用户开启的生活分类集合，JSON 数组存储
type CategorySet []string

func (s CategorySet) Value() (driver.Value, error) {
	if s == nil {
		s = CategorySet{}
	}
	return json.Marshal(s)
}

func (s *CategorySet) Scan(value interface{}) error {
	if value == nil {
		*s = CategorySet{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CategorySet", value)
	}
	if len(data) == 0 {
		*s = CategorySet{}
		return nil
	}
	return json.Unmarshal(data, s)
}

// Has 判断分类是否已开启
func (s CategorySet) Has(tag string) bool {
	for _, t := range s {
		if t == tag {
			return true
		}
	}
	return false
}

// swagger:model User
// User 用户表 账号由外部系统开通，本服务只读
type User struct {
	BaseModel
	Name              string      `gorm:"size:100;not null" json:"name"`
	Email             string      `gorm:"size:100;unique;not null" json:"email"`
	Avatar            string      `gorm:"size:255" json:"avatar"`
	Language          string      `gorm:"size:10;default:'en'" json:"language"`
	Disabled          bool        `gorm:"default:false" json:"disabled"`
	EnabledCategories CategorySet `gorm:"type:json" json:"enabledCategories"`
	LastSeen          time.Time   `gorm:"default:CURRENT_TIMESTAMP(3)" json:"lastSeen"`
}

func (User) TableName() string {
	return "users"
}
