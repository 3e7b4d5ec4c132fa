package provider

import (
	"errors"
	"testing"
)

func TestValidateLogicalName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"simple file", "report.pdf", nil},
		{"nested path", "documents/P1/photo.jpg", nil},
		{"allowed charset", "a-b_c.d/E9", nil},
		{"empty", "", ErrEmptyName},
		{"absolute path", "/etc/passwd", ErrInvalidName},
		{"parent traversal", "../secrets.txt", ErrInvalidName},
		{"embedded traversal", "documents/../../etc/passwd", ErrInvalidName},
		{"space", "my file.txt", ErrInvalidName},
		{"shell metachar", "a;rm.txt", ErrInvalidName},
		{"non ascii", "文件.txt", ErrInvalidName},
		{"double dot inside segment", "archive..old/f.txt", ErrInvalidName},
		{"double dot in file name", "documents/P1/photo..jpg", ErrInvalidName},
		{"single dots ok", "a.b.c/f.txt", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLogicalName(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateLogicalName(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"photo.jpg", "photo.jpg"},
		{"my file.txt", "my_file.txt"},
		{"a/b\\c.txt", "a_b_c.txt"},
		{"résumé.pdf", "r_sum_.pdf"},
		{"..", ".."},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.input); got != tt.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestErrorClassRetryable(t *testing.T) {
	retryable := []ErrorClass{ClassPermission, ClassCapacity, ClassBusy, ClassIO}
	for _, c := range retryable {
		if !c.Retryable() {
			t.Errorf("class %s should be retryable", c)
		}
	}
	permanent := []ErrorClass{ClassNotFound, ClassUnknown}
	for _, c := range permanent {
		if c.Retryable() {
			t.Errorf("class %s should not be retryable", c)
		}
	}
}

func TestStorageErrorIsNotFound(t *testing.T) {
	err := &StorageError{Op: "download", Backend: "local", Path: "x", Class: ClassNotFound, Err: errors.New("gone")}
	if !errors.Is(err, ErrNotFound) {
		t.Error("ClassNotFound StorageError should match ErrNotFound")
	}
	err.Class = ClassIO
	if errors.Is(err, ErrNotFound) {
		t.Error("ClassIO StorageError should not match ErrNotFound")
	}
}
