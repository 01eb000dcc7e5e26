package classfile_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodMac/go-archcheck/decoder"
	"github.com/CodMac/go-archcheck/model"
	"github.com/CodMac/go-archcheck/x/classfile"
	"github.com/CodMac/go-archcheck/x/classfile/classfiletest"
)

const (
	service = "com.tngtech.archunit.example.service.ServiceViolatingDaoRules"
	myEM    = service + "$MyEntityManager"
	em      = "javax.persistence.EntityManager"
)

func decodeOne(t *testing.T, data []byte) *model.ImportedType {
	t.Helper()
	d, err := decoder.GetDecoder(model.KindClass)
	require.NoError(t, err, "class decoder should be registered")
	types, err := d.Decode(&decoder.Artifact{Path: "test.class", Kind: model.KindClass, Data: data})
	require.NoError(t, err)
	require.Len(t, types, 1)
	return types[0]
}

func TestDecodeServiceViolatingDaoRules(t *testing.T) {
	typ := decodeOne(t, classfiletest.ServiceViolatingDaoRulesClass())

	assert.Equal(t, service, typ.Name)
	assert.Equal(t, model.Class, typ.Kind)
	assert.Equal(t, "java.lang.Object", typ.SuperClass)
	assert.Equal(t, "ServiceViolatingDaoRules.java", typ.SourceFile)
	assert.Equal(t, "test.class", typ.Artifact)
	assert.Equal(t, 12, typ.DeclarationLine())

	field := typ.Member("entityManager", nil)
	require.NotNil(t, field)
	assert.Equal(t, model.Field, field.Kind)
	assert.Equal(t, em, field.ReturnType)

	ctor := typ.Member(model.ConstructorName, nil)
	require.NotNil(t, ctor)
	assert.Equal(t, model.Constructor, ctor.Kind)

	m := typ.Member("illegallyUseEntityManager", nil)
	require.NotNil(t, m)
	assert.Empty(t, m.ParamTypes)
	assert.Equal(t, "void", m.ReturnType)
	assert.Equal(t, 24, m.Location.StartLine)

	type site struct {
		kind   model.DependencyType
		target string
		member string
		params []string
		line   int
	}
	var got []site
	for _, cs := range m.CallSites {
		assert.True(t, cs.Resolved)
		assert.Equal(t, service, cs.OriginType)
		assert.Equal(t, "illegallyUseEntityManager", cs.OriginMember)
		got = append(got, site{cs.Kind, cs.TargetType, cs.TargetMember, cs.TargetParams, cs.Line})
	}
	assert.Equal(t, []site{
		{model.Use, service, "entityManager", nil, 24},
		{model.Create, "java.lang.Object", model.ConstructorName, nil, 24},
		{model.Call, em, "persist", []string{"java.lang.Object"}, 24},
		{model.Use, service, "myEntityManager", nil, 25},
		{model.Create, "java.lang.Object", model.ConstructorName, nil, 25},
		{model.Call, myEM, "persist", []string{"java.lang.Object"}, 25},
	}, got)
}

func TestDecodeSkipsSwitchPayloads(t *testing.T) {
	typ := decodeOne(t, classfiletest.ServiceViolatingDaoRulesClass())

	m := typ.Member("switches", []string{"int"})
	require.NotNil(t, m)
	require.Len(t, m.CallSites, 1, "jump table bytes must not be read as instructions")
	cs := m.CallSites[0]
	assert.Equal(t, "java.lang.System", cs.TargetType)
	assert.Equal(t, "currentTimeMillis", cs.TargetMember)
	assert.Equal(t, 31, cs.Line)
}

func TestDecodeHierarchyAndAnnotations(t *testing.T) {
	t.Run("nested class implements interface", func(t *testing.T) {
		typ := decodeOne(t, classfiletest.MyEntityManagerClass())
		assert.Equal(t, myEM, typ.Name)
		assert.Equal(t, "MyEntityManager", typ.SimpleName())
		assert.Equal(t, []string{em}, typ.Interfaces)
		assert.Contains(t, typ.Modifiers, "abstract")
	})

	t.Run("interface with abstract method", func(t *testing.T) {
		typ := decodeOne(t, classfiletest.EntityManagerClass())
		assert.Equal(t, model.Interface, typ.Kind)
		assert.Empty(t, typ.SuperClass)
		persist := typ.Member("persist", []string{"java.lang.Object"})
		require.NotNil(t, persist)
		assert.Empty(t, persist.CallSites)
		assert.Nil(t, typ.Location)
	})

	t.Run("annotation type", func(t *testing.T) {
		typ := decodeOne(t, classfiletest.MyDaoClass())
		assert.Equal(t, model.KAnnotation, typ.Kind)
		assert.True(t, typ.IsInterface())
	})

	t.Run("annotated dao ignores bridge method", func(t *testing.T) {
		typ := decodeOne(t, classfiletest.ProperDaoClass())
		require.Len(t, typ.Annotations, 1)
		assert.Equal(t, "com.tngtech.archunit.example.MyDao", typ.Annotations[0].Name)
		assert.Equal(t, "orders", typ.Annotations[0].Attributes["value"])
		assert.True(t, typ.HasAnnotation("MyDao"))

		bridge := typ.Member("persistOrder", []string{"java.lang.String"})
		require.NotNil(t, bridge)
		assert.Contains(t, bridge.Modifiers, "bridge")
		assert.Empty(t, bridge.CallSites)

		real := typ.Member("persistOrder", []string{"java.lang.Object"})
		require.NotNil(t, real)
		require.Len(t, real.CallSites, 2)
		assert.Equal(t, 14, real.CallSites[1].Line)
	})
}

func TestDecodeMalformed(t *testing.T) {
	valid := classfiletest.ServiceViolatingDaoRulesClass()
	cases := map[string][]byte{
		"empty":     {},
		"bad magic": {0xCA, 0xFE, 0xBA, 0xBF, 0, 0, 0, 52},
		"truncated": valid[:len(valid)/2],
		"trailing":  append(append([]byte{}, valid...), 0x00),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := classfile.Parse(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, classfile.ErrMalformed), "got %v", err)
		})
	}
}

func TestDecodeInvalidOpcode(t *testing.T) {
	c := &classfiletest.Class{
		Access: classfiletest.AccPublic,
		Name:   "a/Broken",
		Super:  "java/lang/Object",
		Methods: []classfiletest.Method{{
			Name: "m",
			Desc: "()V",
			Code: func(p *classfiletest.Pool) []byte { return []byte{0xfe, 0xb1} },
		}},
	}
	_, err := classfile.Parse(c.Bytes())
	require.Error(t, err)
	assert.ErrorIs(t, err, classfile.ErrMalformed)
	assert.Contains(t, err.Error(), "method m")
}

func TestDecodeSwitchBounds(t *testing.T) {
	method := func(code []byte) []byte {
		c := &classfiletest.Class{
			Access: classfiletest.AccPublic,
			Name:   "a/Switch",
			Super:  "java/lang/Object",
			Methods: []classfiletest.Method{{
				Name: "m",
				Desc: "(I)V",
				Code: func(p *classfiletest.Pool) []byte { return code },
			}},
		}
		return c.Bytes()
	}
	// 操作码后补 3 字节对齐到偏移 4
	header := []byte{0xaa, 0, 0, 0}

	t.Run("table", func(t *testing.T) {
		code := classfiletest.Concat(header,
			classfiletest.U4(20), classfiletest.U4(1), classfiletest.U4(2),
			classfiletest.U4(24), classfiletest.U4(24),
			[]byte{0xb1})
		_, err := classfile.Parse(method(code))
		assert.NoError(t, err)
	})

	malformed := map[string][]byte{
		"full int32 range": classfiletest.Concat(header,
			classfiletest.U4(0), classfiletest.U4(0x80000000), classfiletest.U4(0x7fffffff),
			[]byte{0xb1}),
		"more entries than code": classfiletest.Concat(header,
			classfiletest.U4(0), classfiletest.U4(0), classfiletest.U4(1000),
			[]byte{0xb1}),
		"lookupswitch pairs beyond code": classfiletest.Concat([]byte{0xab, 0, 0, 0},
			classfiletest.U4(0), classfiletest.U4(0x7fffffff), classfiletest.U4(0),
			[]byte{0xb1}),
	}
	for name, code := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := classfile.Parse(method(code))
			require.Error(t, err)
			assert.ErrorIs(t, err, classfile.ErrMalformed)
			assert.Contains(t, err.Error(), "exceeds code")
		})
	}
}

func TestDecodeArtifactNameInError(t *testing.T) {
	_, err := classfile.NewClassFileDecoder().Decode(&decoder.Artifact{Path: "lib.jar", Entry: "a/B.class", Data: []byte{1, 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lib.jar!a/B.class")
}
