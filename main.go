package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"github.com/CodMac/go-archcheck/config"
	"github.com/CodMac/go-archcheck/importer"
	"github.com/CodMac/go-archcheck/logger"
	"github.com/CodMac/go-archcheck/output"
	"github.com/CodMac/go-archcheck/rule"
	"github.com/CodMac/go-archcheck/rulesdsl"
)

// 退出码
const (
	exitOK         = 0
	exitViolations = 1
	exitError      = 2
)

// listFlag 可重复的字符串参数, 也接受逗号分隔
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("archcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var locations, rules, include, exclude listFlag
	configPath := fs.String("config", "", "YAML 配置文件")
	fs.Var(&locations, "path", "要分析的目录、.class、.jar 或源码文件 (可重复)")
	fs.Var(&rules, "rules", "YAML 规则包 (可重复)")
	fs.Var(&include, "include", "只分析这些包前缀 (可重复)")
	fs.Var(&exclude, "exclude", "排除这些包前缀 (可重复)")
	workers := fs.Int("workers", 0, "并发解码的协程数量 (默认 CPU 核心数)")
	format := fs.String("format", "", "输出格式: text, jsonl, mermaid")
	outPath := fs.String("out", "", "输出文件 (默认 stdout)")
	modelPath := fs.String("export-model", "", "把代码模型导出为 JSONL 文件")
	logLevel := fs.String("log-level", "", "日志级别: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return exitError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return exitError
	}

	// 命令行参数覆盖配置文件
	locations = append(locations, fs.Args()...)
	if len(locations) > 0 {
		cfg.Analysis.Locations = locations
	}
	if len(rules) > 0 {
		cfg.Rules.Files = rules
	}
	if len(include) > 0 {
		cfg.Analysis.Packages.Include = include
	}
	if len(exclude) > 0 {
		cfg.Analysis.Packages.Exclude = exclude
	}
	if *workers > 0 {
		cfg.Analysis.Workers = *workers
	}
	if *format != "" {
		cfg.Output.Format = *format
	}
	if *outPath != "" {
		cfg.Output.Path = *outPath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	base := logger.NewWithWriter(cfg.Logging.Level, cfg.Logging.Format, stderr)
	defer func() { _ = base.Sync() }()
	log := base.Named(logger.ComponentCLI)

	violations, err := check(ctx, cfg, *modelPath, base, stdout)
	if err != nil {
		log.Error("check failed", zap.Error(err))
		return exitError
	}
	if violations > 0 {
		return exitViolations
	}
	return exitOK
}

// check 导入、求值并输出, 返回违规事件总数
func check(ctx context.Context, cfg config.Config, modelPath string, base *zap.Logger, stdout io.Writer) (int, error) {
	log := base.Named(logger.ComponentCLI)

	if len(cfg.Analysis.Locations) == 0 {
		return 0, errors.New("no locations to analyse (use -path or analysis.locations)")
	}
	if len(cfg.Rules.Files) == 0 {
		return 0, errors.New("no rule packs (use -rules or rules.files)")
	}

	// 1. 规则先于导入编译, 配置错误不必等待导入
	archRules, err := rulesdsl.LoadFiles(cfg.Rules.Files)
	if err != nil {
		return 0, err
	}
	log.Info("rules loaded", zap.Int("rules", len(archRules)), zap.Strings("files", cfg.Rules.Files))

	// 2. 导入
	opts := []importer.Option{
		importer.WithLogger(base),
		importer.WithRetryDelay(cfg.Analysis.RetryDelay),
	}
	if cfg.Analysis.Workers > 0 {
		opts = append(opts, importer.WithWorkers(cfg.Analysis.Workers))
	}
	m, err := importer.ImportArtifacts(ctx, cfg.Analysis.Locations, cfg.Analysis.Packages, opts...)
	if err != nil {
		return 0, err
	}
	for _, w := range m.Warnings() {
		log.Warn("import warning", zap.String("kind", string(w.Kind)), zap.String("detail", w.String()))
	}
	log.Info("model imported", zap.Int("types", m.Len()), zap.Int("warnings", len(m.Warnings())))

	if modelPath != "" {
		if err := writeFile(modelPath, func(w io.Writer) error {
			_, err := output.ExportModel(w, m)
			return err
		}); err != nil {
			return 0, fmt.Errorf("export model: %w", err)
		}
	}

	// 3. 求值
	// 单条规则出错时仍输出全部结果, 最后以错误退出
	results, evalErr := rule.NewEvaluator(base).EvaluateAll(ctx, archRules, m, cfg.Rules.Workers)
	if results == nil {
		return 0, evalErr
	}
	violations := 0
	for _, res := range results {
		violations += len(res.Events)
		if res.Err != nil {
			log.Error("rule evaluation failed", zap.String("rule", res.Rule.Description), zap.Error(res.Err))
		}
	}

	// 4. 输出
	write := func(w io.Writer) error {
		switch cfg.Output.Format {
		case config.OutputJSONL:
			_, err := output.ExportViolations(w, results)
			return err
		case config.OutputMermaid:
			return output.ExportMermaidHTML(w, m, results)
		default:
			_, err := output.WriteReport(w, results)
			return err
		}
	}
	if cfg.Output.Path == "" {
		err = write(stdout)
	} else {
		err = writeFile(cfg.Output.Path, write)
	}
	if err != nil {
		return violations, fmt.Errorf("write %s output: %w", cfg.Output.Format, err)
	}
	log.Info("check complete", zap.Int("rules", len(results)), zap.Int("violations", violations))
	return violations, evalErr
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
