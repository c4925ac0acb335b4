package notification

import "time"

// 通知类型
const (
	TypeInfo    = "info"
	TypeWarning = "warning"
)

// 通知分类
const (
	CategoryWorkflow = "workflow"
)

// Notification 站内通知记录。引擎只负责落库，
// 实际投递（邮件、WebSocket 推送等）由外部系统消费该表完成。
type Notification struct {
	ID     uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID string `json:"userId" gorm:"size:100;not null;index"`

	Type     string `json:"type" gorm:"size:20;not null;default:info"`
	Category string `json:"category" gorm:"size:50;not null;index"`

	Title   string `json:"title" gorm:"size:255;not null"`
	Message string `json:"message" gorm:"type:text"`

	RelatedEntityType string `json:"relatedEntityType" gorm:"size:50"`
	RelatedEntityID   string `json:"relatedEntityId" gorm:"size:100;index"`
	ActionURL         string `json:"actionUrl" gorm:"size:255"`

	IsRead    bool      `json:"isRead" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime;index"`
}

// TableName 指定表名
func (Notification) TableName() string { return "notifications" }
