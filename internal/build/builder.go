package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qr-lecture/devhub/internal/assets"
)

// Source 是构建读取资源的接口，*assets.Site 满足该接口。
type Source interface {
	Root() string
	Open(urlPath string) (assets.Asset, error)
}

// Report 汇总一次构建的产物数量与字节数。
type Report struct {
	OutDir string
	Files  int
	Bytes  int64
}

// Builder 把 Root 下的源文件逐个经由 Source 读取并写入 OutDir。
type Builder struct {
	source Source
	outDir string
	logger *logrus.Logger
}

// NewBuilder 创建 Builder，outDir 为相对 Root 的产物目录。
func NewBuilder(source Source, outDir string, logger *logrus.Logger) (*Builder, error) {
	if source == nil {
		return nil, errors.New("source is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(outDir) == "" {
		return nil, errors.New("out dir is required")
	}
	return &Builder{source: source, outDir: outDir, logger: logger}, nil
}

// Run 清空 OutDir 后写入全部产物。OutDir 非空且缺少 BuildMarker 时拒绝构建。
// node_modules、隐藏文件与 OutDir 自身不会被复制。
func (b *Builder) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	root := b.source.Root()
	store, err := NewOutputStore(filepath.Join(root, b.outDir))
	if err != nil {
		return Report{}, err
	}
	if err := store.Reset(); err != nil {
		return Report{}, fmt.Errorf("reset out dir: %w", err)
	}

	report := Report{OutDir: store.Path()}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}
		if d.IsDir() {
			if skipDir(p, d.Name(), store.Path()) {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		asset, err := b.source.Open("/" + rel)
		if errors.Is(err, assets.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}

		entry, err := store.Put(ctx, rel, bytes.NewReader(asset.Body), asset.ModTime)
		if err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
		report.Files++
		report.Bytes += entry.SizeBytes
		b.logger.WithFields(logrus.Fields{
			"action": "build",
			"path":   rel,
			"bytes":  entry.SizeBytes,
		}).Debug("artifact_written")
		return nil
	})
	if err != nil {
		return report, err
	}

	b.logger.WithFields(logrus.Fields{
		"action":     "build",
		"out_dir":    report.OutDir,
		"files":      report.Files,
		"bytes":      report.Bytes,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("build_complete")
	return report, nil
}

func skipDir(p, name, outDir string) bool {
	if p == outDir {
		return true
	}
	return name == "node_modules" || strings.HasPrefix(name, ".")
}
