package bootstrap

import (
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// TargetID 是挂载目标元素的 id。
	TargetID = "app"
	// MissingTargetMessage 是目标缺失时输出的固定诊断信息。
	MissingTargetMessage = "Target element not found"
)

// Outcome 是一次 bootstrap 的结果。
type Outcome int

const (
	Mounted Outcome = iota + 1
	TargetMissing
)

func (o Outcome) String() string {
	switch o {
	case Mounted:
		return "mounted"
	case TargetMissing:
		return "target_missing"
	default:
		return "unknown"
	}
}

// Element 是文档中的一个元素。
type Element interface {
	ID() string
}

// Document 按 id 查找元素。
type Document interface {
	ElementByID(id string) (Element, bool)
}

// Mounter 将应用挂载到目标元素上，返回值不被调用方检查。
type Mounter interface {
	Mount(target Element)
}

// MounterFunc adapts a function to the Mounter interface.
type MounterFunc func(Element)

// Mount makes MounterFunc satisfy Mounter.
func (f MounterFunc) Mount(target Element) {
	f(target)
}

// MountApplication 查找 #app：存在时挂载一次，缺失时输出一条 error 日志后结束。
func MountApplication(doc Document, mounter Mounter, logger logrus.FieldLogger) Outcome {
	target, ok := doc.ElementByID(TargetID)
	if !ok {
		logger.WithFields(logrus.Fields{
			"action": "mount",
			"target": TargetID,
		}).Error(MissingTargetMessage)
		return TargetMissing
	}
	mounter.Mount(target)
	return Mounted
}

// Bootstrapper 保证进程内最多执行一次挂载，之后的调用返回首次结果。
type Bootstrapper struct {
	once    sync.Once
	outcome Outcome
	logger  logrus.FieldLogger
}

// NewBootstrapper 创建 Bootstrapper。
func NewBootstrapper(logger logrus.FieldLogger) *Bootstrapper {
	return &Bootstrapper{logger: logger}
}

// Run 执行（或复用）挂载结果。
func (b *Bootstrapper) Run(doc Document, mounter Mounter) Outcome {
	b.once.Do(func() {
		b.outcome = MountApplication(doc, mounter, b.logger)
	})
	return b.outcome
}
