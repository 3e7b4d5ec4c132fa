package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"trainvault-go/internal/config"
)

// scriptedProvider 按预设脚本依次返回错误，用于验证重试边界。
type scriptedProvider struct {
	typ     string
	errs    []error // 第 i 次调用返回 errs[i]，越界后返回 nil
	calls   int
	lastPos int64
}

func (s *scriptedProvider) next() error {
	s.calls++
	if s.calls <= len(s.errs) {
		return s.errs[s.calls-1]
	}
	return nil
}

func (s *scriptedProvider) Upload(_ context.Context, data io.Reader, _ int64, logicalName, _ string) (string, error) {
	if seeker, ok := data.(io.Seeker); ok {
		pos, _ := seeker.Seek(0, io.SeekCurrent)
		s.lastPos = pos
	}
	// 模拟真实后端消费数据源
	_, _ = io.Copy(io.Discard, data)
	if err := s.next(); err != nil {
		return "", err
	}
	return logicalName, nil
}

func (s *scriptedProvider) Download(context.Context, string, string) ([]byte, string, error) {
	if err := s.next(); err != nil {
		return nil, "", err
	}
	return []byte("ok"), "text/plain", nil
}

func (s *scriptedProvider) Delete(context.Context, string, string) error {
	return s.next()
}

func (s *scriptedProvider) Exists(context.Context, string) (bool, error) { return true, nil }
func (s *scriptedProvider) Ping(context.Context) error                   { return nil }
func (s *scriptedProvider) Type() string                                 { return s.typ }

func testRetryConfig(attempts int) config.RetryConfig {
	return config.RetryConfig{MaxAttempts: attempts, MinBackoffMs: 1, MaxBackoffMs: 2}
}

func transientErr(class ErrorClass) error {
	return &StorageError{Op: "op", Backend: "fake", Path: "p", Class: class, Err: errors.New("boom")}
}

func TestWrapRetriesTransientThenSucceeds(t *testing.T) {
	inner := &scriptedProvider{
		typ:  "fake",
		errs: []error{transientErr(ClassBusy), transientErr(ClassIO)},
	}
	p := Wrap(inner, testRetryConfig(3))

	path, err := p.Upload(context.Background(), bytes.NewReader([]byte("data")), 4, "a/b.txt", "cid")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if path != "a/b.txt" {
		t.Errorf("path = %q, want %q", path, "a/b.txt")
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}
	if inner.lastPos != 0 {
		t.Errorf("reader not rewound before retry, pos = %d", inner.lastPos)
	}
}

func TestWrapStopsAfterMaxAttempts(t *testing.T) {
	inner := &scriptedProvider{
		typ:  "fake",
		errs: []error{transientErr(ClassIO), transientErr(ClassIO), transientErr(ClassIO), transientErr(ClassIO)},
	}
	p := Wrap(inner, testRetryConfig(3))

	err := p.Delete(context.Background(), "a/b.txt", "cid")
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, want 3", inner.calls)
	}
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T, want *StorageError", err)
	}
	if se.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", se.Attempts)
	}
}

func TestWrapDoesNotRetryPermanentErrors(t *testing.T) {
	for _, class := range []ErrorClass{ClassNotFound, ClassUnknown} {
		inner := &scriptedProvider{typ: "fake", errs: []error{transientErr(class)}}
		p := Wrap(inner, testRetryConfig(5))

		_, _, err := p.Download(context.Background(), "a/b.txt", "cid")
		if err == nil {
			t.Fatalf("class %s: expected error", class)
		}
		if inner.calls != 1 {
			t.Errorf("class %s: inner calls = %d, want 1", class, inner.calls)
		}
	}
}

func TestWrapRejectsInvalidNamesBeforeBackend(t *testing.T) {
	inner := &scriptedProvider{typ: "fake"}
	p := Wrap(inner, testRetryConfig(3))

	if _, err := p.Upload(context.Background(), bytes.NewReader(nil), 1, "../evil", "cid"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Upload err = %v, want ErrInvalidName", err)
	}
	if _, _, err := p.Download(context.Background(), "", "cid"); !errors.Is(err, ErrEmptyName) {
		t.Errorf("Download err = %v, want ErrEmptyName", err)
	}
	if err := p.Delete(context.Background(), "/abs", "cid"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Delete err = %v, want ErrInvalidName", err)
	}
	if inner.calls != 0 {
		t.Errorf("backend was reached %d times, want 0", inner.calls)
	}
}

func TestWrapUploadNonSeekableFailsOnRetry(t *testing.T) {
	inner := &scriptedProvider{typ: "fake", errs: []error{transientErr(ClassIO)}}
	p := Wrap(inner, testRetryConfig(3))

	// io.Reader 而非 io.ReadSeeker：首次失败后无法重读数据源
	r := io.LimitReader(bytes.NewReader([]byte("data")), 4)
	_, err := p.Upload(context.Background(), r, 4, "a.txt", "cid")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Class != ClassUnknown {
		t.Errorf("err = %v, want ClassUnknown StorageError", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}
