package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Entry 描述一次写入完成的产物。
type Entry struct {
	Path      string
	FilePath  string
	SizeBytes int64
	ModTime   time.Time
}

// OutputStore 管理 OutDir 下的产物文件，所有写入经由临时文件 + rename 保证原子性。
type OutputStore struct {
	basePath string
}

// NewOutputStore 以 basePath 为根目录构建产物存储，目录不存在时自动创建。
func NewOutputStore(basePath string) (*OutputStore, error) {
	if basePath == "" {
		return nil, errors.New("output path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create output path: %w", err)
	}

	return &OutputStore{basePath: abs}, nil
}

// Path 返回产物根目录的绝对路径。
func (s *OutputStore) Path() string {
	return s.basePath
}

// BuildMarker 标记目录由 devhub 构建管理。
const BuildMarker = ".devhub-build"

// ErrUnmanagedOutDir 表示产物目录非空且没有构建标记，拒绝清空。
var ErrUnmanagedOutDir = errors.New("out dir is not empty and has no build marker")

// Reset 清空产物目录中的旧文件并写入构建标记，目录本身保留。
// 只有空目录或带 BuildMarker 的目录会被清空，其余情况返回 ErrUnmanagedOutDir 且不删除任何文件。
func (s *OutputStore) Reset() error {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		if _, err := os.Stat(filepath.Join(s.basePath, BuildMarker)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: %s", ErrUnmanagedOutDir, s.basePath)
			}
			return err
		}
	}
	for _, entry := range entries {
		if entry.Name() == BuildMarker {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.basePath, entry.Name())); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(s.basePath, BuildMarker), []byte("devhub\n"), 0o644)
}

// Put 将 body 写入 rel 对应的文件，可选地设置文件时间戳。失败时清理临时文件。
func (s *OutputStore) Put(ctx context.Context, rel string, body io.Reader, modTime time.Time) (*Entry, error) {
	filePath, err := s.path(rel)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".build-*")
	if err != nil {
		return nil, err
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return nil, err
	}
	if err := os.Chmod(tempName, 0o644); err != nil {
		os.Remove(tempName)
		return nil, err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return nil, err
	}

	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	if err := os.Chtimes(filePath, modTime, modTime); err != nil {
		return nil, err
	}

	return &Entry{
		Path:      rel,
		FilePath:  filePath,
		SizeBytes: written,
		ModTime:   modTime,
	}, nil
}

func (s *OutputStore) path(rel string) (string, error) {
	clean := path.Clean("/" + rel)
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" {
		return "", errors.New("artifact path required")
	}

	filePath := filepath.Join(s.basePath, filepath.FromSlash(clean))
	if !strings.HasPrefix(filePath, s.basePath+string(filepath.Separator)) {
		return "", errors.New("invalid artifact path")
	}
	return filePath, nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
