package crypto

import (
	"bytes"
	"context"
	"crypto/aes"
	"errors"
	"strings"
	"sync"
	"testing"
)

const testKey = "603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testKey, 2)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestNewCodecRejectsBadKeys(t *testing.T) {
	bad := []string{
		"",
		"abc",
		strings.Repeat("0", 63),
		strings.Repeat("0", 65),
		strings.Repeat("g", 64), // 非十六进制字符
	}
	for _, key := range bad {
		if _, err := NewCodec(key, 1); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("NewCodec(%q) err = %v, want ErrInvalidKey", key, err)
		}
	}
	if c, err := NewCodec(strings.ToUpper(testKey), 1); err != nil {
		t.Errorf("uppercase hex key should be accepted: %v", err)
	} else {
		c.Close()
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	ctx := context.Background()

	plaintexts := [][]byte{
		[]byte(""),
		[]byte("short"),
		bytes.Repeat([]byte("block-aligned 16"), 4), // 正好块对齐
		bytes.Repeat([]byte{0xde, 0xad}, 5000),
	}
	for _, pt := range plaintexts {
		ct, iv, err := c.Encrypt(ctx, pt)
		if err != nil {
			t.Fatalf("Encrypt(%d bytes): %v", len(pt), err)
		}
		if len(iv) != aes.BlockSize {
			t.Errorf("iv length = %d, want %d", len(iv), aes.BlockSize)
		}
		if len(ct)%aes.BlockSize != 0 {
			t.Errorf("ciphertext length %d not block-aligned", len(ct))
		}
		if len(pt) > 0 && bytes.Contains(ct, pt) {
			t.Error("ciphertext contains plaintext")
		}

		got, err := c.Decrypt(ctx, ct, iv)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if !bytes.Equal(got, pt) {
			t.Errorf("round trip failed for %d-byte plaintext", len(pt))
		}
	}
}

func TestEncryptUsesFreshIVPerCall(t *testing.T) {
	c := newTestCodec(t)
	ctx := context.Background()
	pt := []byte("same plaintext")

	ct1, iv1, err := c.Encrypt(ctx, pt)
	if err != nil {
		t.Fatal(err)
	}
	ct2, iv2, err := c.Encrypt(ctx, pt)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(iv1, iv2) {
		t.Error("two encryptions reused the same IV")
	}
	if bytes.Equal(ct1, ct2) {
		t.Error("same plaintext produced identical ciphertext")
	}
}

func TestDecryptRejectsCorruptInput(t *testing.T) {
	c := newTestCodec(t)
	ctx := context.Background()

	ct, iv, err := c.Encrypt(ctx, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Decrypt(ctx, ct[:len(ct)-1], iv); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("truncated ciphertext: err = %v", err)
	}
	if _, err := c.Decrypt(ctx, ct, iv[:8]); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("short iv: err = %v", err)
	}

	// 篡改最后一个块会破坏 PKCS#7 填充
	bad := append([]byte(nil), ct...)
	bad[len(bad)-1] ^= 0xff
	if _, err := c.Decrypt(ctx, bad, iv); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("tampered padding: err = %v", err)
	}
}

func TestCodecConcurrentUse(t *testing.T) {
	c := newTestCodec(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			pt := bytes.Repeat([]byte{byte(n)}, 100+n)
			ct, iv, err := c.Encrypt(ctx, pt)
			if err != nil {
				t.Errorf("Encrypt: %v", err)
				return
			}
			got, err := c.Decrypt(ctx, ct, iv)
			if err != nil {
				t.Errorf("Decrypt: %v", err)
				return
			}
			if !bytes.Equal(got, pt) {
				t.Error("concurrent round trip mismatch")
			}
		}(i)
	}
	wg.Wait()
}

func TestCodecCloseConcurrentWithWork(t *testing.T) {
	c, err := NewCodec(testKey, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// 并发调用期间关闭：每个调用要么完成要么得到 ErrClosed，绝不 panic。
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.Encrypt(ctx, []byte("payload"))
			if err != nil && !errors.Is(err, ErrClosed) {
				t.Errorf("Encrypt: %v", err)
			}
		}()
	}
	c.Close()
	wg.Wait()
}

func TestCodecClosedRejectsWork(t *testing.T) {
	c, err := NewCodec(testKey, 1)
	if err != nil {
		t.Fatal(err)
	}
	c.Close()
	c.Close() // 重复关闭必须安全

	if _, _, err := c.Encrypt(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Encrypt after Close: err = %v, want ErrClosed", err)
	}
}
