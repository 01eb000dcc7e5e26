package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CodMac/go-archcheck/decoder"
	"github.com/CodMac/go-archcheck/graph"
	"github.com/CodMac/go-archcheck/logger"
	"github.com/CodMac/go-archcheck/model"

	// 注册所有制品解码器
	_ "github.com/CodMac/go-archcheck/x/classfile"
	_ "github.com/CodMac/go-archcheck/x/golang"
	_ "github.com/CodMac/go-archcheck/x/java"
)

// ErrNoArtifacts 发现阶段没有找到任何可导入的制品
var ErrNoArtifacts = errors.New("no importable artifacts found")

// Importer 并发解码制品, 再按固定顺序单线程合并为代码模型。
// 依赖反射才能发现的引用不会被导入。
type Importer struct {
	Workers    int // 并发解码的协程数量
	retryDelay time.Duration
	readFile   func(path string) ([]byte, error)
	log        *zap.Logger
}

// Option 配置 Importer
type Option func(*Importer)

// WithWorkers 设置并发数, <= 0 时使用 CPU 核心数
func WithWorkers(n int) Option {
	return func(im *Importer) { im.Workers = n }
}

// WithLogger 设置 logger
func WithLogger(l *zap.Logger) Option {
	return func(im *Importer) { im.log = l }
}

// WithRetryDelay 设置读取失败后重试前的等待时间
func WithRetryDelay(d time.Duration) Option {
	return func(im *Importer) { im.retryDelay = d }
}

// WithFileReader 替换文件读取函数
func WithFileReader(read func(path string) ([]byte, error)) Option {
	return func(im *Importer) { im.readFile = read }
}

// New 创建 Importer
func New(opts ...Option) *Importer {
	im := &Importer{
		retryDelay: 50 * time.Millisecond,
		readFile:   os.ReadFile,
	}
	for _, opt := range opts {
		opt(im)
	}
	if im.Workers <= 0 {
		im.Workers = runtime.NumCPU()
	}
	im.log = logger.OrNop(im.log).Named(logger.ComponentImporter)
	return im
}

// ImportArtifacts 是 New(opts...).Import 的便捷形式
func ImportArtifacts(ctx context.Context, locations []string, filter PackageFilter, opts ...Option) (*graph.CodeModel, error) {
	return New(opts...).Import(ctx, locations, filter)
}

// decoded 一个制品的解码结果
type decoded struct {
	name  string
	types []*model.ImportedType
}

// slot 一个发现源 (文件或归档) 的结果, 每个 worker 只写自己的 slot
type slot struct {
	items    []decoded
	warnings []model.ImportWarning
}

// Import 导入 locations 下的全部制品并构建不可变的代码模型。
// 单个制品的失败只记录为告警; 只有发现失败、没有制品或 ctx 取消会返回错误。
func (im *Importer) Import(ctx context.Context, locations []string, filter PackageFilter) (*graph.CodeModel, error) {
	sources, err := discover(locations)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w in %v", ErrNoArtifacts, locations)
	}
	im.log.Info("Importing artifacts", zap.Int("files", len(sources)), zap.Int("workers", im.Workers))

	// --- 阶段 1: 并发读取与解码 ---
	slots := make([]slot, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.Workers)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = im.process(gctx, src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("import aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("import aborted: %w", err)
	}

	// --- 阶段 2: 按制品顺序单线程合并 ---
	b := graph.NewBuilder()
	for _, s := range slots {
		for _, w := range s.warnings {
			b.Warn(w)
		}
		for _, item := range s.items {
			for _, t := range item.types {
				im.merge(b, item.name, t, filter)
			}
		}
	}

	m := b.Build()
	im.log.Info("Import finished", zap.Int("types", m.Len()), zap.Int("warnings", len(m.Warnings())))
	return m, nil
}

// process 读取一个发现源并解码其中的全部制品
func (im *Importer) process(ctx context.Context, src source) slot {
	var s slot
	data, retried, err := im.read(ctx, src.path)
	if retried {
		s.warnings = append(s.warnings, model.ImportWarning{
			Kind: model.ReadRetry, Artifact: src.path, Message: "read succeeded after retry",
		})
	}
	if err != nil {
		im.log.Warn("Skipping unreadable artifact", zap.String("artifact", src.path), zap.Error(err))
		s.warnings = append(s.warnings, model.ImportWarning{
			Kind: model.UnresolvableArtifact, Artifact: src.path, Message: err.Error(),
		})
		return s
	}

	artifacts := []*decoder.Artifact{{Path: src.path, Kind: src.kind, Data: data}}
	if src.kind == model.KindJar {
		var warnings []model.ImportWarning
		artifacts, warnings, err = expandArchive(src.path, data)
		s.warnings = append(s.warnings, warnings...)
		if err != nil {
			im.log.Warn("Skipping unreadable archive", zap.String("artifact", src.path), zap.Error(err))
			s.warnings = append(s.warnings, model.ImportWarning{
				Kind: model.UnresolvableArtifact, Artifact: src.path, Message: err.Error(),
			})
			return s
		}
	}

	for _, a := range artifacts {
		types, err := decode(a)
		if err != nil {
			im.log.Warn("Skipping undecodable artifact", zap.String("artifact", a.Name()), zap.Error(err))
			s.warnings = append(s.warnings, model.ImportWarning{
				Kind: model.UnresolvableArtifact, Artifact: a.Name(), Message: err.Error(),
			})
			continue
		}
		digest := xxhash.Sum64(a.Data)
		for _, t := range types {
			t.Artifact = a.Name()
			t.Digest = digest
		}
		im.log.Debug("Decoded artifact", zap.String("artifact", a.Name()), zap.Int("types", len(types)))
		s.items = append(s.items, decoded{name: a.Name(), types: types})
	}
	return s
}

// read 读取文件, 瞬时错误重试一次; 文件不存在不重试
func (im *Importer) read(ctx context.Context, path string) ([]byte, bool, error) {
	var (
		data     []byte
		attempts int
	)
	op := func() error {
		attempts++
		b, err := im.readFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return backoff.Permanent(err)
			}
			return err
		}
		data = b
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(im.retryDelay), 1), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, d time.Duration) {
		im.log.Warn("Retrying artifact read", zap.String("artifact", path), zap.Duration("delay", d), zap.Error(err))
	})
	return data, attempts > 1 && err == nil, err
}

func decode(a *decoder.Artifact) ([]*model.ImportedType, error) {
	d, err := decoder.GetDecoder(a.Kind)
	if err != nil {
		return nil, err
	}
	return d.Decode(a)
}
