package service

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"trainvault-go/internal/cache"
	"trainvault-go/internal/config"
	"trainvault-go/internal/crypto"
	"trainvault-go/internal/metrics"
	"trainvault-go/internal/model"
	"trainvault-go/internal/provider"
	"trainvault-go/internal/repository"
	"trainvault-go/pkg/log"
	"trainvault-go/pkg/notify"

	"gorm.io/gorm"
)

// fallbackPrefix 是主后端写入失败后本地取证副本的路径前缀。
// 这份副本只用于人工恢复，不产生目录行，也不会被自动接管。
const fallbackPrefix = "fallback/"

// digestSubject 是每日摘要通知的主题标识。
const digestSubject = "file-storage-daily-digest"

// OwnerLookup 是归属实体存在性查询的协作方抽象，由外围应用实现。
type OwnerLookup interface {
	Resolve(ctx context.Context, ownerKey string) (model.OwnerRef, error)
}

// UploadInput 描述一个待上传的文件。
type UploadInput struct {
	FileName string
	MimeType string
	Size     int64
	Reader   io.Reader
}

// UploadResult 是上传成功后的返回值。
type UploadResult struct {
	FileID uint   `json:"fileId"`
	Path   string `json:"path"`
}

// FileContent 是下载成功后的返回值，Data 为解密后的明文字节。
type FileContent struct {
	Data     []byte
	FileName string
	MimeType string
}

// FileService 接口定义了文件存储编排层对上游暴露的全部操作。
type FileService interface {
	UploadFile(ctx context.Context, input UploadInput, ownerKey, category string, sensitive bool, correlationID string) (*UploadResult, error)
	GetFile(ctx context.Context, fileID uint, correlationID string) (*FileContent, error)
	DeleteFile(ctx context.Context, fileID uint, correlationID string) error
	SendDailyNotificationSummary(ctx context.Context) error
	CleanupOrphanedFiles(ctx context.Context) (int, error)
}

type fileService struct {
	primary  provider.Provider  // 当前配置的主存储后端（已套重试装饰器）
	fallback provider.Provider  // 本地变体原生句柄，仅用于单次尽力而为的回退写入
	registry *provider.Registry // storageType -> 变体，读取/删除/清理按目录行调度
	repo     repository.FileMetadataRepository
	cache    cache.MetadataCache
	codec    *crypto.Codec
	owners   OwnerLookup
	notifier *Notifier
	sender   notify.Sender
	recorder metrics.Recorder
	filesCfg config.FilesConfig

	sweeping int32 // 孤儿清理运行标记，保证单实例内不自重叠
}

// NewFileService 创建文件存储编排服务。
func NewFileService(
	primary provider.Provider,
	fallback provider.Provider,
	registry *provider.Registry,
	repo repository.FileMetadataRepository,
	metaCache cache.MetadataCache,
	codec *crypto.Codec,
	owners OwnerLookup,
	notifier *Notifier,
	sender notify.Sender,
	recorder metrics.Recorder,
	filesCfg config.FilesConfig,
) FileService {
	return &fileService{
		primary:  primary,
		fallback: fallback,
		registry: registry,
		repo:     repo,
		cache:    metaCache,
		codec:    codec,
		owners:   owners,
		notifier: notifier,
		sender:   sender,
		recorder: recorder,
		filesCfg: filesCfg,
	}
}

// UploadFile 执行 校验 -> 加密 -> 后端写入 -> 目录落库 -> 缓存填充 的完整上传流程。
// 后端写入成功之后才写目录行，因此失败只会留下无目录引用的后端对象，
// 绝不会留下指向空物的目录行。
func (s *fileService) UploadFile(ctx context.Context, input UploadInput, ownerKey, category string, sensitive bool, correlationID string) (*UploadResult, error) {
	start := time.Now()
	log.Infof("[UploadFile] 开始上传文件, fileName: %s, owner: %s, category: %s, sensitive: %v, correlationId: %s",
		input.FileName, ownerKey, category, sensitive, correlationID)

	// 1. 输入校验
	if input.Size <= 0 {
		s.observe("upload", "validation", start)
		return nil, newValidationError("文件为空")
	}
	if input.Size > s.filesCfg.MaxSizeBytes {
		s.observe("upload", "validation", start)
		return nil, newValidationError("文件大小 %d 超过上限 %d", input.Size, s.filesCfg.MaxSizeBytes)
	}
	mimeType := input.MimeType
	if !s.mimeAllowed(mimeType) {
		s.observe("upload", "validation", start)
		return nil, newValidationError("不允许的 MIME 类型: %q", mimeType)
	}

	// 2. 归属实体必须存在，否则不做任何后续动作
	owner, err := s.owners.Resolve(ctx, ownerKey)
	if err != nil {
		s.observe("upload", "validation", start)
		if errors.Is(err, repository.ErrOwnerNotFound) {
			return nil, newValidationError("归属实体不存在: %s", ownerKey)
		}
		return nil, fmt.Errorf("解析归属实体失败: %w", err)
	}

	data, err := readAll(input.Reader, s.filesCfg.MaxSizeBytes)
	if err != nil {
		s.observe("upload", "validation", start)
		if errors.Is(err, errTooLarge) {
			return nil, newValidationError("文件内容超过上限 %d", s.filesCfg.MaxSizeBytes)
		}
		return nil, fmt.Errorf("读取上传内容失败: %w", err)
	}
	if len(data) == 0 {
		s.observe("upload", "validation", start)
		return nil, newValidationError("文件为空")
	}

	// 3. 敏感文件在 worker 池中加密，IV 随目录行保存
	payload := data
	var ivHex string
	if sensitive {
		ciphertext, iv, err := s.codec.Encrypt(ctx, data)
		if err != nil {
			s.observe("upload", "crypto", start)
			return nil, fmt.Errorf("加密失败: %w", err)
		}
		payload = ciphertext
		ivHex = hex.EncodeToString(iv)
	}

	// 4. 派发到主存储后端
	logicalName := fmt.Sprintf("%s/%s/%s", category, ownerKey, provider.SanitizeFileName(input.FileName))
	path, err := s.primary.Upload(ctx, bytes.NewReader(payload), int64(len(payload)), logicalName, correlationID)
	if err != nil {
		if errors.Is(err, provider.ErrEmptyName) || errors.Is(err, provider.ErrInvalidName) {
			s.observe("upload", "validation", start)
			return nil, newValidationError("非法的存储路径: %s", logicalName)
		}
		// 重试耗尽：做一次尽力而为的本地取证写入，记失败事件，上传仍按失败处理。
		s.writeFallbackCopy(ctx, payload, logicalName, correlationID)
		s.notifier.RecordFailure(FailureEvent{
			Op:            "upload",
			Backend:       s.primary.Type(),
			Path:          logicalName,
			Reason:        err.Error(),
			CorrelationID: correlationID,
			At:            time.Now(),
		})
		s.observe("upload", outcomeOf(err), start)
		log.Error("[UploadFile] 主后端写入失败", err)
		return nil, err
	}

	// 5. 后端写入成功后才落目录行
	meta := &model.FileMetadata{
		Path:        path,
		FileName:    input.FileName,
		MimeType:    mimeType,
		FileSize:    int64(len(data)),
		StorageType: s.primary.Type(),
		IV:          ivHex,
		IsSensitive: sensitive,
		Category:    category,
	}
	owner.Apply(meta)
	if err := s.repo.Create(meta); err != nil {
		// 已知的不对称窗口：后端对象已写成功但目录行缺失，留给人工处理。
		s.notifier.RecordFailure(FailureEvent{
			Op:            "catalog-write",
			Backend:       s.primary.Type(),
			Path:          path,
			Reason:        err.Error(),
			CorrelationID: correlationID,
			At:            time.Now(),
		})
		s.observe("upload", "catalog", start)
		log.Error("[UploadFile] 目录写入失败，后端对象已写入且无目录引用", err)
		return nil, fmt.Errorf("写入元数据目录失败: %w", err)
	}
	s.cache.Set(ctx, meta.ID, meta)

	if sensitive {
		s.notifier.RecordSensitiveAccess(SensitiveAccessEvent{
			FileID: meta.ID, Path: path, Action: "upload",
			CorrelationID: correlationID, At: time.Now(),
		})
	}

	s.observe("upload", "success", start)
	log.Infof("[UploadFile] 上传成功, fileId: %d, path: %s, correlationId: %s", meta.ID, path, correlationID)
	return &UploadResult{FileID: meta.ID, Path: path}, nil
}

// GetFile 读取文件内容：缓存 -> 目录 读穿透，按 storageType 调度下载，敏感文件解密。
func (s *fileService) GetFile(ctx context.Context, fileID uint, correlationID string) (*FileContent, error) {
	start := time.Now()
	log.Infof("[GetFile] 开始读取文件, fileId: %d, correlationId: %s", fileID, correlationID)

	meta, err := s.lookupMetadata(ctx, fileID)
	if err != nil {
		s.observe("download", "validation", start)
		return nil, err
	}

	p, err := s.registry.Get(meta.StorageType)
	if err != nil {
		s.observe("download", "dispatch", start)
		return nil, fmt.Errorf("无法调度存储后端: %w", err)
	}

	data, mimeType, err := p.Download(ctx, meta.Path, correlationID)
	if err != nil {
		s.observe("download", outcomeOf(err), start)
		log.Error("[GetFile] 后端读取失败", err)
		return nil, err
	}

	if meta.IsSensitive {
		iv, err := hex.DecodeString(meta.IV)
		if err != nil {
			s.observe("download", "crypto", start)
			return nil, fmt.Errorf("目录中的 IV 无法解析: %w", err)
		}
		data, err = s.codec.Decrypt(ctx, data, iv)
		if err != nil {
			s.observe("download", "crypto", start)
			return nil, fmt.Errorf("解密失败: %w", err)
		}
		s.notifier.RecordSensitiveAccess(SensitiveAccessEvent{
			FileID: meta.ID, Path: meta.Path, Action: "download",
			CorrelationID: correlationID, At: time.Now(),
		})
	}

	if meta.MimeType != "" {
		mimeType = meta.MimeType
	}
	s.observe("download", "success", start)
	return &FileContent{Data: data, FileName: meta.FileName, MimeType: mimeType}, nil
}

// DeleteFile 删除文件。目录中不存在的 id 是幂等空操作，直接成功返回。
func (s *fileService) DeleteFile(ctx context.Context, fileID uint, correlationID string) error {
	start := time.Now()
	log.Infof("[DeleteFile] 开始删除文件, fileId: %d, correlationId: %s", fileID, correlationID)

	meta, err := s.lookupMetadata(ctx, fileID)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			// 幂等删除：没有这一行就视为已删除。
			log.Infof("[DeleteFile] 目录中无此文件，按幂等空操作处理, fileId: %d", fileID)
			s.observe("delete", "success", start)
			return nil
		}
		s.observe("delete", "catalog", start)
		return err
	}

	p, err := s.registry.Get(meta.StorageType)
	if err != nil {
		s.observe("delete", "dispatch", start)
		return fmt.Errorf("无法调度存储后端: %w", err)
	}

	if err := p.Delete(ctx, meta.Path, correlationID); err != nil && !errors.Is(err, provider.ErrNotFound) {
		s.observe("delete", outcomeOf(err), start)
		log.Error("[DeleteFile] 后端删除失败", err)
		return err
	}

	if err := s.repo.Delete(meta.ID); err != nil {
		s.observe("delete", "catalog", start)
		return fmt.Errorf("删除元数据目录行失败: %w", err)
	}
	s.cache.Delete(ctx, meta.ID)

	s.notifier.RecordDeletion(DeletionEvent{
		FileID: meta.ID, Path: meta.Path, StorageType: meta.StorageType,
		CorrelationID: correlationID, At: time.Now(),
	})
	s.observe("delete", "success", start)
	log.Infof("[DeleteFile] 删除成功, fileId: %d, path: %s", meta.ID, meta.Path)
	return nil
}

// SendDailyNotificationSummary 取空三条事件队列，若有内容则发出一份批量摘要。
// 全部为空时不发送任何通知。
func (s *fileService) SendDailyNotificationSummary(ctx context.Context) error {
	digest, ok := s.notifier.Drain()
	if !ok {
		log.Debugf("[NotificationSummary] 本周期无事件，跳过摘要发送")
		return nil
	}

	log.Infof("[NotificationSummary] 发送摘要: 敏感访问 %d 条, 失败 %d 条, 删除 %d 条",
		len(digest.SensitiveAccess), len(digest.Failures), len(digest.Deletions))
	if err := s.sender.Send(ctx, digestSubject, digest); err != nil {
		log.Error("[NotificationSummary] 摘要发送失败", err)
		return fmt.Errorf("发送通知摘要失败: %w", err)
	}
	return nil
}

// CleanupOrphanedFiles 遍历全部目录行，删除后端对象确认缺失的孤儿行。
// storageType 未知的行只记日志跳过，配置不明时绝不做破坏性动作。
// 返回本次清理删除的行数。
func (s *fileService) CleanupOrphanedFiles(ctx context.Context) (int, error) {
	if !atomic.CompareAndSwapInt32(&s.sweeping, 0, 1) {
		log.Warnf("[CleanupOrphans] 上一轮清理尚未结束，跳过本轮")
		return 0, nil
	}
	defer atomic.StoreInt32(&s.sweeping, 0)

	log.Info("[CleanupOrphans] 开始孤儿文件清理")
	removed := 0
	err := s.repo.FindInBatches(200, func(rows []model.FileMetadata) error {
		for i := range rows {
			row := rows[i]

			p, err := s.registry.Get(row.StorageType)
			if err != nil {
				log.Warnf("[CleanupOrphans] 跳过未知 storageType 的行, fileId: %d, storageType: %s", row.ID, row.StorageType)
				continue
			}

			exists, err := p.Exists(ctx, row.Path)
			if err != nil {
				// 探测失败是模糊状态，宁可留下也不误删。
				log.Warnf("[CleanupOrphans] 存在性探测失败，跳过, fileId: %d, path: %s, err: %v", row.ID, row.Path, err)
				continue
			}
			if exists {
				continue
			}

			if err := s.repo.Delete(row.ID); err != nil {
				log.Errorf("[CleanupOrphans] 删除孤儿目录行失败, fileId: %d, err: %v", row.ID, err)
				continue
			}
			s.cache.Delete(ctx, row.ID)
			removed++
			log.Infof("[CleanupOrphans] 已删除孤儿行, fileId: %d, path: %s, storageType: %s", row.ID, row.Path, row.StorageType)
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("遍历元数据目录失败: %w", err)
	}

	log.Infof("[CleanupOrphans] 清理完成, 共删除 %d 行", removed)
	return removed, nil
}

// lookupMetadata 实现读穿透：缓存命中直接返回，未命中回源目录并回填缓存。
func (s *fileService) lookupMetadata(ctx context.Context, fileID uint) (*model.FileMetadata, error) {
	if fileID == 0 {
		return nil, newValidationError("非法的文件 id: %d", fileID)
	}
	if meta, ok := s.cache.Get(ctx, fileID); ok {
		return meta, nil
	}

	meta, err := s.repo.FindByID(fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newValidationError("文件不存在: %d", fileID)
		}
		return nil, fmt.Errorf("查询元数据目录失败: %w", err)
	}
	s.cache.Set(ctx, fileID, meta)
	return meta, nil
}

// writeFallbackCopy 在主后端失败后向本地盘写一份取证副本。
// 恰好尝试一次，成功与否都不改变上传的失败结论。
func (s *fileService) writeFallbackCopy(ctx context.Context, payload []byte, logicalName, correlationID string) {
	fallbackName := fallbackPrefix + logicalName
	if _, err := s.fallback.Upload(ctx, bytes.NewReader(payload), int64(len(payload)), fallbackName, correlationID); err != nil {
		log.Errorf("[UploadFile] 本地回退副本写入失败, path: %s, err: %v", fallbackName, err)
		return
	}
	log.Warnf("[UploadFile] 已写入本地回退副本（无目录行，仅供人工恢复）, path: %s", fallbackName)
}

func (s *fileService) mimeAllowed(mimeType string) bool {
	for _, allowed := range s.filesCfg.AllowedMimeTypes {
		if allowed == mimeType {
			return true
		}
	}
	return false
}

func (s *fileService) observe(op, outcome string, start time.Time) {
	s.recorder.Observe(op, outcome, time.Since(start))
}

// outcomeOf 把存储错误映射为指标的结果标签。
func outcomeOf(err error) string {
	var se *provider.StorageError
	if errors.As(err, &se) {
		return string(se.Class)
	}
	return "error"
}

var errTooLarge = errors.New("content exceeds size limit")

// readAll 读取全部内容，超过 limit 立即报错而不是继续吞数据。
func readAll(r io.Reader, limit int64) ([]byte, error) {
	buf := new(bytes.Buffer)
	n, err := buf.ReadFrom(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, errTooLarge
	}
	return buf.Bytes(), nil
}
