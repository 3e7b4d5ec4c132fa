package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"trainvault-go/internal/model"

	"gorm.io/gorm"
)

// ErrOwnerNotFound 表示归属实体不存在或 ownerKey 格式非法。
var ErrOwnerNotFound = errors.New("repository: owner entity not found")

// OwnerRepository 实现归属实体的存在性查询。
// ownerKey 的约定格式为前缀字母 + 数字 id：P<id> 学员、T<id> 培训场次、C<id> 能力项。
type OwnerRepository struct {
	db *gorm.DB
}

// NewOwnerRepository 创建一个新的 OwnerRepository 实例。
func NewOwnerRepository(db *gorm.DB) *OwnerRepository {
	return &OwnerRepository{db: db}
}

// Resolve 解析 ownerKey 并确认对应的业务实体存在，返回归属引用。
func (r *OwnerRepository) Resolve(ctx context.Context, ownerKey string) (model.OwnerRef, error) {
	if len(ownerKey) < 2 {
		return model.OwnerRef{}, fmt.Errorf("%w: 非法的 ownerKey %q", ErrOwnerNotFound, ownerKey)
	}

	var kind model.OwnerKind
	var table string
	switch ownerKey[0] {
	case 'P':
		kind, table = model.OwnerParticipant, "participants"
	case 'T':
		kind, table = model.OwnerTrainingSession, "training_sessions"
	case 'C':
		kind, table = model.OwnerCapability, "capabilities"
	default:
		return model.OwnerRef{}, fmt.Errorf("%w: 未知的归属实体前缀 %q", ErrOwnerNotFound, ownerKey)
	}

	id, err := strconv.ParseUint(ownerKey[1:], 10, 64)
	if err != nil || id == 0 {
		return model.OwnerRef{}, fmt.Errorf("%w: 非法的 ownerKey %q", ErrOwnerNotFound, ownerKey)
	}

	var count int64
	if err := r.db.WithContext(ctx).Table(table).Where("id = ?", id).Count(&count).Error; err != nil {
		return model.OwnerRef{}, fmt.Errorf("查询归属实体失败: %w", err)
	}
	if count == 0 {
		return model.OwnerRef{}, fmt.Errorf("%w: %s", ErrOwnerNotFound, ownerKey)
	}

	return model.OwnerRef{Kind: kind, ID: uint(id)}, nil
}
