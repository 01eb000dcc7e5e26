package decoder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodMac/go-archcheck/decoder"
	"github.com/CodMac/go-archcheck/model"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, model.KindClass, decoder.KindOf("out/a/B.class"))
	assert.Equal(t, model.KindJava, decoder.KindOf("src/a/B.java"))
	assert.Equal(t, model.KindGo, decoder.KindOf("pkg/x.go"))
	assert.Equal(t, model.ArtifactKind(""), decoder.KindOf("pkg/x_test.go"))
	assert.Equal(t, model.KindJar, decoder.KindOf("lib/app.JAR"))
	assert.Equal(t, model.ArtifactKind(""), decoder.KindOf("README.md"))
}

func TestRegistry(t *testing.T) {
	kind := model.ArtifactKind("test-kind")
	_, err := decoder.GetDecoder(kind)
	require.Error(t, err)

	decoder.RegisterDecoder(kind, decoder.DecoderFunc(func(a *decoder.Artifact) ([]*model.ImportedType, error) {
		return []*model.ImportedType{{Name: a.Name()}}, nil
	}))
	d, err := decoder.GetDecoder(kind)
	require.NoError(t, err)

	types, err := d.Decode(&decoder.Artifact{Path: "lib.jar", Entry: "a/B.class"})
	require.NoError(t, err)
	assert.Equal(t, "lib.jar!a/B.class", types[0].Name)
}
