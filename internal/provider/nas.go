package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"sync"

	"trainvault-go/internal/config"
	"trainvault-go/pkg/log"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// nasProvider 通过 SFTP 会话访问网络存储。
// 会话是长连接：每次操作前先做健康检查，失效则透明重连，
// 重连失败归类为 I/O 错误，由外层装饰器按统一重试策略兜底。
type nasProvider struct {
	cfg config.NASConfig

	mu     sync.Mutex
	client *sftp.Client
	conn   *ssh.Client
}

// NewNAS 创建 SFTP 网络存储变体并建立初始会话。
func NewNAS(cfg config.NASConfig) (Provider, error) {
	p := &nasProvider{cfg: cfg}
	if err := p.reconnect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *nasProvider) Type() string { return config.StorageTypeNAS }

// session 返回一个健康的 SFTP 客户端，必要时重建会话。
func (p *nasProvider) session() (*sftp.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		// 轻量探测：Getwd 失败说明会话已断。
		if _, err := p.client.Getwd(); err == nil {
			return p.client, nil
		}
		log.Warnf("[nas] SFTP 会话已失效，正在重连 %s", p.cfg.Addr)
		p.closeLocked()
	}
	if err := p.reconnectLocked(); err != nil {
		return nil, err
	}
	return p.client, nil
}

func (p *nasProvider) reconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reconnectLocked()
}

func (p *nasProvider) reconnectLocked() error {
	sshCfg := &ssh.ClientConfig{
		User: p.cfg.User,
		Auth: []ssh.AuthMethod{ssh.Password(p.cfg.Password)},
		// NAS 位于受控内网，主机密钥由运维侧保证。
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	conn, err := ssh.Dial("tcp", p.cfg.Addr, sshCfg)
	if err != nil {
		return newError("connect", p.Type(), p.cfg.Addr, "", ClassIO, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return newError("connect", p.Type(), p.cfg.Addr, "", ClassIO, err)
	}
	p.conn = conn
	p.client = client
	log.Infof("[nas] SFTP 会话已建立: %s", p.cfg.Addr)
	return nil
}

func (p *nasProvider) closeLocked() {
	if p.client != nil {
		_ = p.client.Close()
		p.client = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *nasProvider) Upload(ctx context.Context, data io.Reader, size int64, logicalName, correlationID string) (string, error) {
	client, err := p.session()
	if err != nil {
		return "", err
	}

	dest := path.Join(p.cfg.RootDir, logicalName)
	if err := client.MkdirAll(path.Dir(dest)); err != nil {
		return "", p.wrap("upload", logicalName, correlationID, err)
	}
	f, err := client.Create(dest)
	if err != nil {
		return "", p.wrap("upload", logicalName, correlationID, err)
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		_ = client.Remove(dest)
		return "", p.wrap("upload", logicalName, correlationID, err)
	}
	if err := f.Close(); err != nil {
		return "", p.wrap("upload", logicalName, correlationID, err)
	}
	_ = client.Chmod(dest, 0o600)

	log.Debugf("[nas] 写入完成: %s (correlationId=%s)", dest, correlationID)
	return logicalName, nil
}

func (p *nasProvider) Download(ctx context.Context, physicalPath, correlationID string) ([]byte, string, error) {
	client, err := p.session()
	if err != nil {
		return nil, "", err
	}

	f, err := client.Open(path.Join(p.cfg.RootDir, physicalPath))
	if err != nil {
		return nil, "", p.wrap("download", physicalPath, correlationID, err)
	}
	defer f.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, "", p.wrap("download", physicalPath, correlationID, err)
	}
	return buf.Bytes(), mimeByName(physicalPath), nil
}

func (p *nasProvider) Delete(ctx context.Context, physicalPath, correlationID string) error {
	client, err := p.session()
	if err != nil {
		return err
	}
	if err := client.Remove(path.Join(p.cfg.RootDir, physicalPath)); err != nil {
		return p.wrap("delete", physicalPath, correlationID, err)
	}
	return nil
}

func (p *nasProvider) Exists(ctx context.Context, physicalPath string) (bool, error) {
	client, err := p.session()
	if err != nil {
		return false, err
	}
	_, err = client.Stat(path.Join(p.cfg.RootDir, physicalPath))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, p.wrap("exists", physicalPath, "", err)
}

func (p *nasProvider) Ping(ctx context.Context) error {
	client, err := p.session()
	if err != nil {
		return err
	}
	if _, err := client.Getwd(); err != nil {
		return p.wrap("ping", p.cfg.Addr, "", err)
	}
	return nil
}

// Close 释放长连接会话。
func (p *nasProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

// wrap 将 SFTP 错误归类为统一的错误分类。
func (p *nasProvider) wrap(op, pth, correlationID string, err error) *StorageError {
	class := ClassIO
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, os.ErrNotExist),
		errors.Is(err, sftp.ErrSSHFxNoSuchFile):
		class = ClassNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, sftp.ErrSSHFxPermissionDenied):
		class = ClassPermission
	case errors.Is(err, sftp.ErrSSHFxNoConnection), errors.Is(err, sftp.ErrSSHFxConnectionLost):
		class = ClassBusy
	}
	return newError(op, p.Type(), pth, correlationID, class, err)
}
