// Package crypto 提供敏感文件的静态加密编解码器。
// 算法为 AES-256-CBC + PKCS#7 填充；每次加密都使用新的随机 IV，
// IV 交由调用方存入元数据目录，绝不嵌入密文对象本身。
//
// CPU 密集的加解密在固定大小的 worker 池中执行，与 I/O 处理路径隔离；
// 池边界只通过消息传递通信（字节进、密文+IV 或错误出），不共享可变状态。
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
)

var (
	// ErrInvalidKey 表示密钥不是 64 位十六进制字符串（256 位）。
	ErrInvalidKey = errors.New("crypto: key must be a 64-character hex string")
	// ErrInvalidCiphertext 表示密文长度非法或填充损坏。
	ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")
	// ErrClosed 表示编解码器已关闭。
	ErrClosed = errors.New("crypto: codec is closed")
)

type job struct {
	decrypt bool
	data    []byte
	iv      []byte
	resp    chan result
}

type result struct {
	data []byte
	iv   []byte
	err  error
}

// Codec 是固定 worker 池之上的 AES-256-CBC 编解码器。
type Codec struct {
	key  []byte
	jobs chan job

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup // 正在投递/等待结果的调用方
	wg       sync.WaitGroup // worker goroutine
}

// NewCodec 创建编解码器并启动 worker 池。
// 密钥在此立即校验，非法密钥是致命的启动错误，绝不推迟到运行时。
// workers <= 0 时默认为 CPU 核数。
func NewCodec(hexKey string, workers int) (*Codec, error) {
	key, err := hex.DecodeString(strings.ToLower(hexKey))
	if err != nil || len(key) != 32 {
		return nil, ErrInvalidKey
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	c := &Codec{
		key:  key,
		jobs: make(chan job),
	}
	c.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go c.worker()
	}
	return c, nil
}

// Close 关闭 worker 池并等待在途任务完成。
// 先置关闭标记挡住新调用，等全部在途投递退出后才关闭任务通道，
// 因此与并发的 Encrypt/Decrypt 调用是安全的。
func (c *Codec) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.inflight.Wait()
	close(c.jobs)
	c.wg.Wait()
}

// Encrypt 加密 plaintext，返回密文和本次生成的随机 IV。
func (c *Codec) Encrypt(ctx context.Context, plaintext []byte) (ciphertext, iv []byte, err error) {
	res, err := c.submit(ctx, job{data: plaintext})
	if err != nil {
		return nil, nil, err
	}
	return res.data, res.iv, res.err
}

// Decrypt 使用存储的 IV 解密 ciphertext。
func (c *Codec) Decrypt(ctx context.Context, ciphertext, iv []byte) ([]byte, error) {
	res, err := c.submit(ctx, job{decrypt: true, data: ciphertext, iv: iv})
	if err != nil {
		return nil, err
	}
	return res.data, res.err
}

// submit 将任务投递到 worker 池并等待结果，两端都尊重 ctx 取消。
// 在持锁期间登记在途计数，保证 Close 在所有投递退出前不会关闭任务通道。
func (c *Codec) submit(ctx context.Context, j job) (result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return result{}, ErrClosed
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	j.resp = make(chan result, 1)
	select {
	case c.jobs <- j:
	case <-ctx.Done():
		return result{}, ctx.Err()
	}

	select {
	case res := <-j.resp:
		return res, nil
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

func (c *Codec) worker() {
	defer c.wg.Done()
	for j := range c.jobs {
		var res result
		if j.decrypt {
			res.data, res.err = c.decrypt(j.data, j.iv)
		} else {
			res.data, res.iv, res.err = c.encrypt(j.data)
		}
		j.resp <- res
	}
}

func (c *Codec) encrypt(plaintext []byte) ([]byte, []byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, nil, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("生成随机 IV 失败: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, iv, nil
}

func (c *Codec) decrypt(ciphertext, iv []byte) ([]byte, error) {
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: IV 长度必须为 %d 字节", ErrInvalidCiphertext, aes.BlockSize)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: 密文长度必须为块大小的整数倍", ErrInvalidCiphertext)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	return pkcs7Unpad(padded, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidCiphertext
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidCiphertext
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidCiphertext
		}
	}
	return data[:len(data)-padLen], nil
}
