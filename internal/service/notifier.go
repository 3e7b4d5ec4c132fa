package service

import (
	"sync"
	"time"
)

// SensitiveAccessEvent 记录一次敏感文件的写入或读取。
type SensitiveAccessEvent struct {
	FileID        uint      `json:"file_id"`
	Path          string    `json:"path"`
	Action        string    `json:"action"` // "upload" 或 "download"
	CorrelationID string    `json:"correlation_id"`
	At            time.Time `json:"at"`
}

// FailureEvent 记录一次耗尽重试后的存储操作失败。
type FailureEvent struct {
	Op            string    `json:"op"`
	Backend       string    `json:"backend"`
	Path          string    `json:"path"`
	Reason        string    `json:"reason"`
	CorrelationID string    `json:"correlation_id"`
	At            time.Time `json:"at"`
}

// DeletionEvent 记录一次文件删除。
type DeletionEvent struct {
	FileID        uint      `json:"file_id"`
	Path          string    `json:"path"`
	StorageType   string    `json:"storage_type"`
	CorrelationID string    `json:"correlation_id"`
	At            time.Time `json:"at"`
}

// Digest 是一个周期内累积事件的批量摘要。
type Digest struct {
	GeneratedAt     time.Time              `json:"generated_at"`
	SensitiveAccess []SensitiveAccessEvent `json:"sensitive_access,omitempty"`
	Failures        []FailureEvent         `json:"failures,omitempty"`
	Deletions       []DeletionEvent        `json:"deletions,omitempty"`
}

// Notifier 维护三条相互独立的事件累积队列。
// 记录操作只是内存追加，不做任何 I/O；摘要发送由编排层按周期统一触发。
type Notifier struct {
	mu        sync.Mutex
	sensitive []SensitiveAccessEvent
	failures  []FailureEvent
	deletions []DeletionEvent
}

// NewNotifier 创建一个空的事件累积器。
func NewNotifier() *Notifier {
	return &Notifier{}
}

// RecordSensitiveAccess 追加一条敏感访问事件。
func (n *Notifier) RecordSensitiveAccess(e SensitiveAccessEvent) {
	n.mu.Lock()
	n.sensitive = append(n.sensitive, e)
	n.mu.Unlock()
}

// RecordFailure 追加一条失败事件。
func (n *Notifier) RecordFailure(e FailureEvent) {
	n.mu.Lock()
	n.failures = append(n.failures, e)
	n.mu.Unlock()
}

// RecordDeletion 追加一条删除事件。
func (n *Notifier) RecordDeletion(e DeletionEvent) {
	n.mu.Lock()
	n.deletions = append(n.deletions, e)
	n.mu.Unlock()
}

// Drain 原子地取走三条队列的全部事件并清空。
// 三条队列都为空时返回 false，表示本周期无须发送摘要。
func (n *Notifier) Drain() (Digest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.sensitive) == 0 && len(n.failures) == 0 && len(n.deletions) == 0 {
		return Digest{}, false
	}

	d := Digest{
		GeneratedAt:     time.Now(),
		SensitiveAccess: n.sensitive,
		Failures:        n.failures,
		Deletions:       n.deletions,
	}
	n.sensitive = nil
	n.failures = nil
	n.deletions = nil
	return d, true
}
