// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// FileMetadata 定义了 file_metadata 表的 ORM 模型。
// 每一行描述一个已成功写入存储后端的对象；行只在后端写入成功之后创建，
// 只会被删除操作或孤儿清理任务移除，绝不原地更新（替换 = 先删后传）。
type FileMetadata struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Path        string `gorm:"type:varchar(512);not null;uniqueIndex" json:"path"`
	FileName    string `gorm:"type:varchar(255);not null" json:"fileName"`
	MimeType    string `gorm:"type:varchar(128);not null" json:"mimeType"`
	FileSize    int64  `gorm:"not null" json:"fileSize"`
	StorageType string `gorm:"type:varchar(16);not null;index" json:"storageType"`
	// IV 是十六进制编码的加密初始化向量，当且仅当 IsSensitive=true 时非空。
	IV          string `gorm:"type:varchar(64)" json:"iv,omitempty"`
	IsSensitive bool   `gorm:"not null;default:false" json:"isSensitive"`

	// 归属回链：最多只有一个外键字段非空（行也可能暂时未关联）。
	// Category 标记该文件在归属实体下的文档槽位，如 documents、signature、qrcode。
	ParticipantID     *uint  `gorm:"index" json:"participantId,omitempty"`
	TrainingSessionID *uint  `gorm:"index" json:"trainingSessionId,omitempty"`
	CapabilityID      *uint  `gorm:"index" json:"capabilityId,omitempty"`
	Category          string `gorm:"type:varchar(64);not null" json:"category"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (FileMetadata) TableName() string {
	return "file_metadata"
}

// OwnerLinkCount 返回非空归属外键的数量，用于维护“至多一个归属回链”的不变量。
func (m *FileMetadata) OwnerLinkCount() int {
	n := 0
	if m.ParticipantID != nil {
		n++
	}
	if m.TrainingSessionID != nil {
		n++
	}
	if m.CapabilityID != nil {
		n++
	}
	return n
}

// OwnerKind 标识归属实体的种类。
type OwnerKind string

const (
	OwnerParticipant     OwnerKind = "participant"
	OwnerTrainingSession OwnerKind = "training_session"
	OwnerCapability      OwnerKind = "capability"
)

// OwnerRef 是归属实体的引用，由外部实体查询协作方解析得到。
type OwnerRef struct {
	Kind OwnerKind
	ID   uint
}

// Apply 按归属实体种类填充对应的回链字段。
func (r OwnerRef) Apply(m *FileMetadata) {
	id := r.ID
	switch r.Kind {
	case OwnerParticipant:
		m.ParticipantID = &id
	case OwnerTrainingSession:
		m.TrainingSessionID = &id
	case OwnerCapability:
		m.CapabilityID = &id
	}
}
