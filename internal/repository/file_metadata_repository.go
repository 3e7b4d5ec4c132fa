// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"trainvault-go/internal/model"

	"gorm.io/gorm"
)

// FileMetadataRepository 接口定义了文件元数据目录的持久化操作。
// 目录行只增只删，从不原地更新。
type FileMetadataRepository interface {
	Create(meta *model.FileMetadata) error
	FindByID(id uint) (*model.FileMetadata, error)
	FindByPath(path string) (*model.FileMetadata, error)
	Delete(id uint) error
	// FindInBatches 分批遍历全部目录行，供孤儿清理任务使用。
	FindInBatches(batchSize int, fn func(rows []model.FileMetadata) error) error
}

// fileMetadataRepository 是 FileMetadataRepository 接口的 GORM 实现。
type fileMetadataRepository struct {
	db *gorm.DB
}

// NewFileMetadataRepository 创建一个新的 FileMetadataRepository 实例。
func NewFileMetadataRepository(db *gorm.DB) FileMetadataRepository {
	return &fileMetadataRepository{db: db}
}

// Create 在目录中写入一行新的元数据记录。
func (r *fileMetadataRepository) Create(meta *model.FileMetadata) error {
	return r.db.Create(meta).Error
}

// FindByID 根据主键检索元数据，不存在时返回 gorm.ErrRecordNotFound。
func (r *fileMetadataRepository) FindByID(id uint) (*model.FileMetadata, error) {
	var meta model.FileMetadata
	if err := r.db.First(&meta, id).Error; err != nil {
		return nil, err
	}
	return &meta, nil
}

// FindByPath 根据唯一存储路径检索元数据。
func (r *fileMetadataRepository) FindByPath(path string) (*model.FileMetadata, error) {
	var meta model.FileMetadata
	if err := r.db.Where("path = ?", path).First(&meta).Error; err != nil {
		return nil, err
	}
	return &meta, nil
}

// Delete 按主键删除一行元数据。
func (r *fileMetadataRepository) Delete(id uint) error {
	return r.db.Delete(&model.FileMetadata{}, id).Error
}

// FindInBatches 按主键顺序分批读取全部目录行并逐批回调。
func (r *fileMetadataRepository) FindInBatches(batchSize int, fn func(rows []model.FileMetadata) error) error {
	var rows []model.FileMetadata
	result := r.db.Order("id asc").FindInBatches(&rows, batchSize, func(tx *gorm.DB, batch int) error {
		return fn(rows)
	})
	return result.Error
}
