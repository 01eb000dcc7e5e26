package rule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CodMac/go-archcheck/graph"
	"github.com/CodMac/go-archcheck/logger"
	"github.com/CodMac/go-archcheck/model"
)

// Evaluator 在不可变代码模型上求值规则。求值是纯函数, 可并发执行。
type Evaluator struct {
	log *zap.Logger
}

// NewEvaluator 创建 Evaluator; log 为 nil 时不输出日志
func NewEvaluator(log *zap.Logger) *Evaluator {
	return &Evaluator{log: logger.OrNop(log).Named(logger.ComponentEngine)}
}

var defaultEvaluator = NewEvaluator(nil)

// Evaluate 使用默认 Evaluator 求值单条规则
func Evaluate(r *ArchRule, m *graph.CodeModel) (*EvaluationResult, error) {
	return defaultEvaluator.Evaluate(r, m)
}

// EvaluateAll 使用默认 Evaluator 并发求值多条规则
func EvaluateAll(ctx context.Context, rules []*ArchRule, m *graph.CodeModel, workers int) ([]*EvaluationResult, error) {
	return defaultEvaluator.EvaluateAll(ctx, rules, m, workers)
}

// Evaluate 求值单条规则。事件按 (调用方类型, 成员, 行号, 目标) 排序, 相同输入总是得到相同输出。
// 范围为空不是错误。无法定位到源码行的违规不生成事件, 汇总为 ErrNoProvenance 错误;
// 此时仍返回其余事件, 错误同时记录在 EvaluationResult.Err 中。
func (e *Evaluator) Evaluate(r *ArchRule, m *graph.CodeModel) (*EvaluationResult, error) {
	start := time.Now()
	result := &EvaluationResult{Rule: r}

	scope := make(map[string]*model.ImportedType)
	var scoped []*model.ImportedType
	for _, t := range m.Types() {
		if !t.Stub && r.scope.Test(m, t) {
			scope[t.Name] = t
			scoped = append(scoped, t)
		}
	}

	var errs []error
	if r.condition.typeLevel() {
		errs = e.evaluateTypes(r, m, scoped, result)
	} else {
		errs = e.evaluateEdges(r, m, scope, result)
	}
	if len(errs) > 0 {
		result.Err = fmt.Errorf("evaluate '%s': %w", r.Description, errors.Join(errs...))
		e.log.Warn("Rule partially evaluated",
			zap.String("rule", r.Description),
			zap.Int("violations", len(result.Events)),
			zap.Int("unlocated", len(errs)))
		return result, result.Err
	}

	e.log.Debug("Rule evaluated",
		zap.String("rule", r.Description),
		zap.Int("scope", len(scoped)),
		zap.Int("violations", len(result.Events)),
		zap.Duration("took", time.Since(start)))
	return result, nil
}

func (e *Evaluator) evaluateEdges(r *ArchRule, m *graph.CodeModel, scope map[string]*model.ImportedType, result *EvaluationResult) []error {
	var errs []error
	sites := m.Dependencies(func(cs *model.CallSite) bool {
		_, ok := scope[cs.OriginType]
		return ok
	})
	for _, cs := range sites {
		var violated bool
		switch r.quantifier {
		case QuantifierNo:
			violated = r.condition.matchEdge(m, cs)
		default:
			// 自身访问不参与 "只能..." 类规则
			violated = cs.TargetType != cs.OriginType &&
				r.condition.appliesTo(cs) &&
				!r.condition.matchEdge(m, cs)
		}
		if !violated {
			continue
		}
		ev, err := NewViolationEvent(r, cs.Describe(), cs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result.Events = append(result.Events, ev)
	}
	return errs
}

func (e *Evaluator) evaluateTypes(r *ArchRule, m *graph.CodeModel, scoped []*model.ImportedType, result *EvaluationResult) []error {
	var errs []error
	for _, t := range scoped {
		matched := r.condition.matchType(m, t)
		verb := "should"
		if r.quantifier == QuantifierNo {
			if !matched {
				continue
			}
			verb = "should not"
		} else if matched {
			continue
		}
		site := &model.CallSite{
			Kind:       model.Declaration,
			OriginType: t.Name,
			TargetType: t.Name,
			Line:       t.DeclarationLine(),
			SourceFile: t.SourceFile,
			Resolved:   true,
		}
		msg := fmt.Sprintf("%s %s %s in %s", site.Origin(), verb, r.condition.Description(), site.SourceLocation())
		ev, err := NewViolationEvent(r, msg, site)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result.Events = append(result.Events, ev)
	}
	return errs
}

// EvaluateAll 并发求值多条规则, 结果顺序与 rules 一致。
// 单条规则的错误不影响其他规则: 每条规则都返回结果, 各规则的错误用 errors.Join 汇总返回。
// 只有 ctx 被取消时结果为 nil。
func (e *Evaluator) EvaluateAll(ctx context.Context, rules []*ArchRule, m *graph.CodeModel, workers int) ([]*EvaluationResult, error) {
	results := make([]*EvaluationResult, len(rules))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, r := range rules {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// 规则错误记录在结果中, 不取消同批的其他规则
			results[i], _ = e.Evaluate(r, m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return results, errors.Join(errs...)
}
