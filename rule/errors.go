package rule

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration 规则的谓词树或条件树不合法
	ErrConfiguration = errors.New("invalid rule configuration")
	// ErrNoProvenance 违规事件缺少带行号的调用点
	ErrNoProvenance = errors.New("violation event without source line")
)

// ConfigError 描述一个不合法的规则定义。errors.Is(err, ErrConfiguration) 为 true。
type ConfigError struct {
	Rule   string // 规则描述或 id, 可能为空
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%s: rule '%s': %s", ErrConfiguration, e.Rule, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}
