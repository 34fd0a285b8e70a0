// Package define 实现编译期符号替换：源码中出现的符号被替换为解析好的 JSON 字面量。
package define

import (
	"bytes"
	"path"
	"sort"
	"strings"

	"github.com/qr-lecture/devhub/internal/config"
)

var scriptExtensions = map[string]struct{}{
	".js":     {},
	".mjs":    {},
	".cjs":    {},
	".jsx":    {},
	".ts":     {},
	".tsx":    {},
	".svelte": {},
}

// Applies 判断给定路径的资源是否参与符号替换。
func Applies(p string) bool {
	_, ok := scriptExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// Replacer 持有按符号长度倒序排列的替换表，可并发复用。
type Replacer struct {
	entries []entry
}

type entry struct {
	symbol  []byte
	literal []byte
}

// NewReplacer 根据解析后的 define 列表构建 Replacer。
func NewReplacer(defines []config.Define) *Replacer {
	entries := make([]entry, 0, len(defines))
	for _, d := range defines {
		if d.Symbol == "" {
			continue
		}
		entries = append(entries, entry{symbol: []byte(d.Symbol), literal: []byte(d.Literal())})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].symbol) > len(entries[j].symbol)
	})
	return &Replacer{entries: entries}
}

// Empty 表示没有任何需要替换的符号。
func (r *Replacer) Empty() bool {
	return r == nil || len(r.entries) == 0
}

// Replace 返回替换后的源码；没有命中时原样返回 src。
// 只替换代码中的完整符号：前一个字符不能是标识符字符或 '.'，后一个字符不能是标识符字符；
// 字符串、模板字面量的文本部分以及注释保持原样，模板中的 ${...} 表达式按代码处理。
func (r *Replacer) Replace(src []byte) []byte {
	if r.Empty() {
		return src
	}

	var (
		buf      bytes.Buffer
		last     int
		replaced bool
		state    = lexCode
		braces   []int
	)
	for i := 0; i < len(src); {
		c := src[i]
		switch state {
		case lexCode:
			switch {
			case c == '\'':
				state = lexSingle
			case c == '"':
				state = lexDouble
			case c == '`':
				state = lexTemplate
			case c == '/' && at(src, i+1) == '/':
				state = lexLineComment
				i++
			case c == '/' && at(src, i+1) == '*':
				state = lexBlockComment
				i++
			case c == '{' && len(braces) > 0:
				braces[len(braces)-1]++
			case c == '}' && len(braces) > 0:
				top := len(braces) - 1
				if braces[top] == 0 {
					braces = braces[:top]
					state = lexTemplate
				} else {
					braces[top]--
				}
			default:
				if e, ok := r.match(src, i); ok {
					if !replaced {
						buf.Grow(len(src))
						replaced = true
					}
					buf.Write(src[last:i])
					buf.Write(e.literal)
					i += len(e.symbol)
					last = i
					continue
				}
			}
		case lexSingle, lexDouble:
			switch {
			case c == '\\':
				i++
			case c == '\n':
				// 未闭合的字符串不跨行
				state = lexCode
			case (c == '\'' && state == lexSingle) || (c == '"' && state == lexDouble):
				state = lexCode
			}
		case lexTemplate:
			switch {
			case c == '\\':
				i++
			case c == '`':
				state = lexCode
			case c == '$' && at(src, i+1) == '{':
				braces = append(braces, 0)
				state = lexCode
				i++
			}
		case lexLineComment:
			if c == '\n' {
				state = lexCode
			}
		case lexBlockComment:
			if c == '*' && at(src, i+1) == '/' {
				state = lexCode
				i++
			}
		}
		i++
	}
	if !replaced {
		return src
	}
	buf.Write(src[last:])
	return buf.Bytes()
}

type lexState int

const (
	lexCode lexState = iota
	lexSingle
	lexDouble
	lexTemplate
	lexLineComment
	lexBlockComment
)

// match 按符号长度从长到短尝试匹配 src[i:]。
func (r *Replacer) match(src []byte, i int) (entry, bool) {
	if !isIdentByte(src[i]) {
		return entry{}, false
	}
	for _, e := range r.entries {
		end := i + len(e.symbol)
		if bytes.HasPrefix(src[i:], e.symbol) && isBoundary(src, i, end) {
			return e, true
		}
	}
	return entry{}, false
}

func at(src []byte, i int) byte {
	if i < len(src) {
		return src[i]
	}
	return 0
}

func isBoundary(src []byte, start, end int) bool {
	if start > 0 {
		prev := src[start-1]
		if isIdentByte(prev) || prev == '.' {
			return false
		}
	}
	if end < len(src) && isIdentByte(src[end]) {
		return false
	}
	return true
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
