// Package rulesdsl 把 YAML 规则包编译为 rule.ArchRule。
//
//	rules:
//	  - id: dao-entity-manager
//	    priority: HIGH
//	    quantifier: all
//	    that:
//	      not: {annotated_with: com.tngtech.archunit.example.MyDao}
//	      as: are no DAOs
//	    should:
//	      never:
//	        access_classes_that: {assignable_to: javax.persistence.EntityManager}
//	        as: access the EntityManager
package rulesdsl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CodMac/go-archcheck/rule"
)

type dslPack struct {
	Rules []dslRule `yaml:"rules"`
}

type dslRule struct {
	ID          string        `yaml:"id"`
	Description string        `yaml:"description"` // 为空时自动生成
	Priority    string        `yaml:"priority"`    // LOW|MEDIUM|HIGH
	Quantifier  string        `yaml:"quantifier"`  // no|all
	That        *dslPredicate `yaml:"that"`
	Should      *dslCondition `yaml:"should"`
}

type dslPredicate struct {
	ResideInPackage        string          `yaml:"reside_in_package"`
	ResideOutsideOfPackage string          `yaml:"reside_outside_of_package"`
	HaveNameMatching       string          `yaml:"have_name_matching"`
	HaveSimpleName         string          `yaml:"have_simple_name"`
	AnnotatedWith          string          `yaml:"annotated_with"`
	AssignableTo           string          `yaml:"assignable_to"`
	AreInterfaces          bool            `yaml:"are_interfaces"`
	Any                    bool            `yaml:"any"`
	And                    []*dslPredicate `yaml:"and"`
	Or                     []*dslPredicate `yaml:"or"`
	Not                    *dslPredicate   `yaml:"not"`
	As                     string          `yaml:"as"`
}

type dslMember struct {
	Owner  *dslPredicate `yaml:"owner"`
	Name   string        `yaml:"name"`
	Params []string      `yaml:"params"` // 省略表示任意重载, [] 表示无参
}

type dslCondition struct {
	AccessClassesThat   *dslPredicate   `yaml:"access_classes_that"`
	CallMethod          *dslMember      `yaml:"call_method"`
	AccessField         *dslMember      `yaml:"access_field"`
	DependOnClassesThat *dslPredicate   `yaml:"depend_on_classes_that"`
	ExtendOrImplement   *dslPredicate   `yaml:"extend_or_implement"`
	BeAnnotatedWith     string          `yaml:"be_annotated_with"`
	BeInPackage         string          `yaml:"be_in_package"`
	And                 []*dslCondition `yaml:"and"`
	Or                  []*dslCondition `yaml:"or"`
	Not                 *dslCondition   `yaml:"not"`
	Never               *dslCondition   `yaml:"never"`
	As                  string          `yaml:"as"`
}

// Load 读取并编译一个规则包文件
func Load(path string) ([]*rule.ArchRule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules pack: %w", err)
	}
	rules, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// LoadFiles 按顺序加载多个规则包; 规则 id 在所有包中必须唯一
func LoadFiles(paths []string) ([]*rule.ArchRule, error) {
	var all []*rule.ArchRule
	seen := make(map[string]string)
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rules pack: %w", err)
		}
		pack, err := decode(b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, r := range pack.Rules {
			if prev, ok := seen[r.ID]; ok && r.ID != "" {
				return nil, fmt.Errorf("%s: compile rule %q: %w", path, r.ID,
					&rule.ConfigError{Rule: r.ID, Reason: "duplicate id, first defined in " + prev})
			}
			seen[r.ID] = path
		}
		rules, err := compilePack(pack)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		all = append(all, rules...)
	}
	return all, nil
}

// Parse 编译内存中的规则包。未知字段与缺失的 id 都是错误, 错误信息包含规则 id。
func Parse(data []byte) ([]*rule.ArchRule, error) {
	pack, err := decode(data)
	if err != nil {
		return nil, err
	}
	return compilePack(pack)
}

func decode(data []byte) (*dslPack, error) {
	var pack dslPack
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pack); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &pack, nil
}

func compilePack(pack *dslPack) ([]*rule.ArchRule, error) {
	out := make([]*rule.ArchRule, 0, len(pack.Rules))
	seen := make(map[string]bool, len(pack.Rules))
	for i, r := range pack.Rules {
		if strings.TrimSpace(r.ID) == "" {
			return nil, fmt.Errorf("compile rule #%d: %w", i+1, &rule.ConfigError{Reason: "missing id"})
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("compile rule %q: %w", r.ID, &rule.ConfigError{Rule: r.ID, Reason: "duplicate id"})
		}
		seen[r.ID] = true

		ar, err := compile(r)
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.ID, err)
		}
		out = append(out, ar)
	}
	return out, nil
}

func compile(r dslRule) (*rule.ArchRule, error) {
	var b *rule.Builder
	switch strings.ToLower(strings.TrimSpace(r.Quantifier)) {
	case "no":
		b = rule.NoClasses()
	case "all":
		b = rule.Classes()
	default:
		return nil, &rule.ConfigError{Rule: r.ID, Reason: fmt.Sprintf("quantifier must be 'no' or 'all', got %q", r.Quantifier)}
	}

	if r.That != nil {
		p, err := compilePredicate(r.That)
		if err != nil {
			return nil, err
		}
		b.That(p)
	}
	if r.Should == nil {
		return nil, &rule.ConfigError{Rule: r.ID, Reason: "missing 'should'"}
	}
	c, err := compileCondition(r.Should)
	if err != nil {
		return nil, err
	}
	return b.Should(c).As(r.Description).WithPriority(rule.Priority(r.Priority)).Build()
}

func compilePredicate(d *dslPredicate) (*rule.TypePredicate, error) {
	if d == nil {
		return nil, &rule.ConfigError{Reason: "empty predicate"}
	}
	var found []*rule.TypePredicate
	add := func(set bool, mk func() *rule.TypePredicate) {
		if set {
			found = append(found, mk())
		}
	}
	add(d.Any, rule.Any)
	add(d.ResideInPackage != "", func() *rule.TypePredicate { return rule.ResideInPackage(d.ResideInPackage) })
	add(d.ResideOutsideOfPackage != "", func() *rule.TypePredicate { return rule.ResideOutsideOfPackage(d.ResideOutsideOfPackage) })
	add(d.HaveNameMatching != "", func() *rule.TypePredicate { return rule.HaveNameMatching(d.HaveNameMatching) })
	add(d.HaveSimpleName != "", func() *rule.TypePredicate { return rule.HaveSimpleName(d.HaveSimpleName) })
	add(d.AnnotatedWith != "", func() *rule.TypePredicate { return rule.AnnotatedWith(d.AnnotatedWith) })
	add(d.AssignableTo != "", func() *rule.TypePredicate { return rule.AssignableTo(d.AssignableTo) })
	add(d.AreInterfaces, rule.AreInterfaces)

	switch {
	case d.And != nil && d.Or != nil:
		return nil, &rule.ConfigError{Reason: "predicate sets both 'and' and 'or'"}
	case d.And != nil:
		children, err := compilePredicates(d.And)
		if err != nil {
			return nil, err
		}
		found = append(found, rule.And(children...))
	case d.Or != nil:
		children, err := compilePredicates(d.Or)
		if err != nil {
			return nil, err
		}
		found = append(found, rule.Or(children...))
	}
	if d.Not != nil {
		child, err := compilePredicate(d.Not)
		if err != nil {
			return nil, err
		}
		found = append(found, rule.Not(child))
	}

	if len(found) != 1 {
		return nil, &rule.ConfigError{Reason: fmt.Sprintf("predicate must set exactly one operator, found %d", len(found))}
	}
	if d.As != "" {
		return found[0].As(d.As), nil
	}
	return found[0], nil
}

func compilePredicates(ds []*dslPredicate) ([]*rule.TypePredicate, error) {
	out := make([]*rule.TypePredicate, 0, len(ds))
	for _, d := range ds {
		p, err := compilePredicate(d)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func compileCondition(d *dslCondition) (*rule.Condition, error) {
	if d == nil {
		return nil, &rule.ConfigError{Reason: "empty condition"}
	}
	var found []*rule.Condition
	withTarget := func(p *dslPredicate, mk func(*rule.TypePredicate) *rule.Condition) error {
		if p == nil {
			return nil
		}
		target, err := compilePredicate(p)
		if err != nil {
			return err
		}
		found = append(found, mk(target))
		return nil
	}
	if err := withTarget(d.AccessClassesThat, rule.AccessClassesThat); err != nil {
		return nil, err
	}
	if err := withTarget(d.DependOnClassesThat, rule.DependOnClassesThat); err != nil {
		return nil, err
	}
	if err := withTarget(d.ExtendOrImplement, rule.ExtendOrImplement); err != nil {
		return nil, err
	}
	if m := d.CallMethod; m != nil {
		owner, err := memberOwner(m)
		if err != nil {
			return nil, err
		}
		found = append(found, rule.CallMethod(owner, m.Name, m.Params...))
	}
	if m := d.AccessField; m != nil {
		owner, err := memberOwner(m)
		if err != nil {
			return nil, err
		}
		found = append(found, rule.AccessField(owner, m.Name))
	}
	if d.BeAnnotatedWith != "" {
		found = append(found, rule.BeAnnotatedWith(d.BeAnnotatedWith))
	}
	if d.BeInPackage != "" {
		found = append(found, rule.BeInPackage(d.BeInPackage))
	}

	switch {
	case d.And != nil && d.Or != nil:
		return nil, &rule.ConfigError{Reason: "condition sets both 'and' and 'or'"}
	case d.And != nil:
		children, err := compileConditions(d.And)
		if err != nil {
			return nil, err
		}
		found = append(found, rule.AndCondition(children...))
	case d.Or != nil:
		children, err := compileConditions(d.Or)
		if err != nil {
			return nil, err
		}
		found = append(found, rule.OrCondition(children...))
	}
	if d.Not != nil {
		child, err := compileCondition(d.Not)
		if err != nil {
			return nil, err
		}
		found = append(found, rule.NotCondition(child))
	}
	if d.Never != nil {
		child, err := compileCondition(d.Never)
		if err != nil {
			return nil, err
		}
		found = append(found, rule.Never(child))
	}

	if len(found) != 1 {
		return nil, &rule.ConfigError{Reason: fmt.Sprintf("condition must set exactly one operator, found %d", len(found))}
	}
	if d.As != "" {
		return found[0].As(d.As), nil
	}
	return found[0], nil
}

func compileConditions(ds []*dslCondition) ([]*rule.Condition, error) {
	out := make([]*rule.Condition, 0, len(ds))
	for _, d := range ds {
		c, err := compileCondition(d)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// memberOwner 省略 owner 表示任意类型
func memberOwner(m *dslMember) (*rule.TypePredicate, error) {
	if m.Owner == nil {
		return rule.Any(), nil
	}
	return compilePredicate(m.Owner)
}
