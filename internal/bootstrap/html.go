package bootstrap

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLDocument 是基于 golang.org/x/net/html 解析树的 Document 实现。
type HTMLDocument struct {
	root *html.Node
}

// HTMLElement 包装解析树中的元素节点。
type HTMLElement struct {
	node *html.Node
}

// ID 返回元素的 id 属性。
func (e *HTMLElement) ID() string {
	return attr(e.node, "id")
}

// ParseDocument 解析 HTML 文档。
func ParseDocument(r io.Reader) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &HTMLDocument{root: root}, nil
}

// ElementByID 深度优先查找第一个 id 匹配的元素。
func (d *HTMLDocument) ElementByID(id string) (Element, bool) {
	node := findNode(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == id
	})
	if node == nil {
		return nil, false
	}
	return &HTMLElement{node: node}, true
}

// ReferencesScript 判断文档中是否已存在 src 指向 entry 的 script。
func (d *HTMLDocument) ReferencesScript(entry string) bool {
	return findNode(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Script && attr(n, "src") == entry
	}) != nil
}

// Render 输出当前文档树。
func (d *HTMLDocument) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return nil, fmt.Errorf("render document: %w", err)
	}
	return buf.Bytes(), nil
}

// EntryMounter 在目标元素之后插入入口模块的 <script type="module">，
// 文档已经引用入口时不做修改。
type EntryMounter struct {
	Document *HTMLDocument
	Entry    string
}

// Mount 实现 Mounter。
func (m EntryMounter) Mount(target Element) {
	el, ok := target.(*HTMLElement)
	if !ok || el.node.Parent == nil || m.Entry == "" {
		return
	}
	if m.Document != nil && m.Document.ReferencesScript(m.Entry) {
		return
	}
	script := &html.Node{
		Type:     html.ElementNode,
		Data:     "script",
		DataAtom: atom.Script,
		Attr: []html.Attribute{
			{Key: "type", Val: "module"},
			{Key: "src", Val: m.Entry},
		},
	}
	el.node.Parent.InsertBefore(script, el.node.NextSibling)
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if match(n) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findNode(child, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
