package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CodMac/go-archcheck/importer"
)

// 输出格式
const (
	OutputText    = "text"
	OutputJSONL   = "jsonl"
	OutputMermaid = "mermaid"
)

// 环境变量前缀, 例如 ARCHCHECK_LOG_LEVEL
const envPrefix = "ARCHCHECK_"

type Config struct {
	Analysis struct {
		Locations  []string               `yaml:"locations"`   // ["./build/classes", "./src"]
		Packages   importer.PackageFilter `yaml:"packages"`    // include/exclude 包前缀
		Workers    int                    `yaml:"workers"`     // 0 = CPU 数
		RetryDelay time.Duration          `yaml:"retry_delay"` // "50ms"
	} `yaml:"analysis"`

	Rules struct {
		Files   []string `yaml:"files"`   // YAML 规则包
		Workers int      `yaml:"workers"` // 并行求值的规则数, 0 = 不限
	} `yaml:"rules"`

	Logging struct {
		Format string `yaml:"format"` // "console"|"json"
		Level  string `yaml:"level"`  // "debug"|"info"|"warn"|"error"
	} `yaml:"logging"`

	Output struct {
		Format string `yaml:"format"` // "text"|"jsonl"|"mermaid"
		Path   string `yaml:"path"`   // 空 = stdout
	} `yaml:"output"`
}

func DefaultConfig() Config {
	var c Config
	c.Analysis.RetryDelay = 50 * time.Millisecond
	c.Logging.Format = "console"
	c.Logging.Level = "info"
	c.Output.Format = OutputText
	return c
}

// Load 读取配置文件 (path 为空时只用默认值), 然后应用环境变量覆盖
func Load(path string) (Config, error) {
	c := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c *Config) applyEnv() error {
	if v := env("LOCATIONS"); v != "" {
		c.Analysis.Locations = splitList(v)
	}
	if v := env("INCLUDE"); v != "" {
		c.Analysis.Packages.Include = splitList(v)
	}
	if v := env("EXCLUDE"); v != "" {
		c.Analysis.Packages.Exclude = splitList(v)
	}
	if v := env("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sWORKERS: %w", envPrefix, err)
		}
		c.Analysis.Workers = n
	}
	if v := env("RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sRETRY_DELAY: %w", envPrefix, err)
		}
		c.Analysis.RetryDelay = d
	}
	if v := env("RULES"); v != "" {
		c.Rules.Files = splitList(v)
	}
	if v := env("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := env("OUTPUT_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := env("OUTPUT_PATH"); v != "" {
		c.Output.Path = v
	}
	return nil
}

// Validate 检查取值范围; 命令行参数覆盖后应再次调用
func (c *Config) Validate() error {
	switch c.Output.Format {
	case OutputText, OutputJSONL, OutputMermaid:
	default:
		return fmt.Errorf("unknown output format %q (want text, jsonl or mermaid)", c.Output.Format)
	}
	if c.Analysis.Workers < 0 || c.Rules.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.Analysis.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative")
	}
	return nil
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + name))
}

// splitList 按逗号拆分并去掉空项
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
