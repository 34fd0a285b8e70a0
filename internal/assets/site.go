// Package assets 负责从 Root 目录读取前端源文件，应用插件与 define 替换，
// 并持有经过 bootstrap 挂载处理的根文档。
package assets

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qr-lecture/devhub/internal/bootstrap"
	"github.com/qr-lecture/devhub/internal/config"
	"github.com/qr-lecture/devhub/internal/define"
	"github.com/qr-lecture/devhub/internal/plugin"
)

// RootDocumentName 是根文档文件名。
const RootDocumentName = "index.html"

// ErrNotFound 表示资源不存在或不可公开。
var ErrNotFound = errors.New("asset not found")

// Asset 是一次读取的结果，Body 已完成替换。
type Asset struct {
	Path        string
	ContentType string
	Body        []byte
	ModTime     time.Time
}

// Options 描述 Site 的依赖。
type Options struct {
	Root    string
	Plugins []plugin.Plugin
	Defines []config.Define
	Logger  logrus.FieldLogger
}

// Site 是只读的站点视图，构造后可并发使用。
type Site struct {
	root     string
	plugins  []plugin.Plugin
	replacer *define.Replacer
	index    Asset
	outcome  bootstrap.Outcome
}

// NewSite 读取根文档并执行一次 bootstrap；#app 缺失时保留原始文档。
func NewSite(opts Options) (*Site, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	indexPath := filepath.Join(root, RootDocumentName)
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("read root document: %w", err)
	}
	info, err := os.Stat(indexPath)
	if err != nil {
		return nil, fmt.Errorf("stat root document: %w", err)
	}

	doc, err := bootstrap.ParseDocument(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	mounter := bootstrap.EntryMounter{Document: doc, Entry: entryModule(opts.Plugins)}
	outcome := bootstrap.NewBootstrapper(opts.Logger).Run(doc, mounter)

	body := raw
	if outcome == bootstrap.Mounted {
		if body, err = doc.Render(); err != nil {
			return nil, err
		}
	}

	return &Site{
		root:     root,
		plugins:  opts.Plugins,
		replacer: define.NewReplacer(opts.Defines),
		index: Asset{
			Path:        "/" + RootDocumentName,
			ContentType: "text/html; charset=utf-8",
			Body:        body,
			ModTime:     info.ModTime(),
		},
		outcome: outcome,
	}, nil
}

// Root 返回站点根目录的绝对路径。
func (s *Site) Root() string {
	return s.root
}

// RootDocument 返回 bootstrap 处理后的根文档。
func (s *Site) RootDocument() Asset {
	return s.index
}

// MountOutcome 返回启动时 bootstrap 的结果。
func (s *Site) MountOutcome() bootstrap.Outcome {
	return s.outcome
}

// Open 读取 URL 路径对应的资源。目录、隐藏文件以及 Root 之外的路径均视为不存在。
func (s *Site) Open(urlPath string) (Asset, error) {
	clean := path.Clean("/" + urlPath)
	if clean == "/" || clean == "/"+RootDocumentName {
		return s.index, nil
	}
	if isHidden(clean) {
		return Asset{}, ErrNotFound
	}

	filePath := filepath.Join(s.root, filepath.FromSlash(clean))
	if !strings.HasPrefix(filePath, s.root+string(filepath.Separator)) {
		return Asset{}, ErrNotFound
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Asset{}, ErrNotFound
		}
		return Asset{}, err
	}
	if info.IsDir() {
		return Asset{}, ErrNotFound
	}

	body, err := os.ReadFile(filePath)
	if err != nil {
		return Asset{}, err
	}
	body, err = s.transform(clean, body)
	if err != nil {
		return Asset{}, fmt.Errorf("transform %s: %w", clean, err)
	}

	return Asset{
		Path:        clean,
		ContentType: s.contentType(clean, body),
		Body:        body,
		ModTime:     info.ModTime(),
	}, nil
}

func (s *Site) transform(p string, body []byte) ([]byte, error) {
	ext := strings.ToLower(path.Ext(p))
	for _, pl := range s.plugins {
		if pl.Hooks.Transform == nil || !pl.Owns(ext) {
			continue
		}
		out, err := pl.Hooks.Transform(p, body)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", pl.Key, err)
		}
		body = out
	}
	if define.Applies(p) {
		body = s.replacer.Replace(body)
	}
	return body, nil
}

func (s *Site) contentType(p string, body []byte) string {
	for _, pl := range s.plugins {
		if pl.Hooks.ContentType == nil {
			continue
		}
		if ct := pl.Hooks.ContentType(p); ct != "" {
			return ct
		}
	}
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct
	}
	return http.DetectContentType(body)
}

func entryModule(plugins []plugin.Plugin) string {
	for _, p := range plugins {
		if p.Entry != "" {
			return p.Entry
		}
	}
	return ""
}

func isHidden(clean string) bool {
	for _, segment := range strings.Split(clean, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}
