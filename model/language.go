package model

// Language 标识源码解码器所支持的编程语言
type Language string

const (
	LangGo   Language = "go"
	LangJava Language = "java"
)

// ArtifactKind 标识一种可被导入的制品格式
type ArtifactKind string

const (
	KindClass ArtifactKind = "class" // 编译后的 JVM 类文件
	KindJava  ArtifactKind = "java"  // Java 源码
	KindGo    ArtifactKind = "go"    // Go 源码
	KindJar   ArtifactKind = "jar"   // 归档, 展开为多个 class 制品
)

// WarningKind 导入阶段的可恢复问题类型
type WarningKind string

const (
	UnresolvableArtifact WarningKind = "UNRESOLVABLE_ARTIFACT"
	DuplicateType        WarningKind = "DUPLICATE_TYPE"
	UnresolvedReference  WarningKind = "UNRESOLVED_REFERENCE"
	ReadRetry            WarningKind = "READ_RETRY"
)

// ImportWarning 是附着在代码模型上的导入期告警
type ImportWarning struct {
	Kind     WarningKind `json:"Kind"`
	Artifact string      `json:"Artifact,omitempty"`
	Type     string      `json:"Type,omitempty"`
	Message  string      `json:"Message"`
}

func (w ImportWarning) String() string {
	s := string(w.Kind)
	if w.Artifact != "" {
		s += " [" + w.Artifact + "]"
	}
	if w.Type != "" {
		s += " " + w.Type
	}
	return s + ": " + w.Message
}
