package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompiler_Prepare(t *testing.T) {
	compiler, err := NewCompilerWithCache(32)
	require.NoError(t, err)

	first, err := compiler.Prepare("genericTemplate")
	require.NoError(t, err)

	second, err := compiler.Prepare("genericTemplate")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = compiler.Prepare("carousel")
	assert.Error(t, err)
}

func TestCompiler_Validate(t *testing.T) {
	compiler, err := NewCompilerWithCache(32)
	require.NoError(t, err)

	valid := []byte(`{"elements":[{"imageUrl":"https://cdn/x.png","title":{"EN":"Plan"},"subtitle":{"EN":"Monthly"}}]}`)
	assert.NoError(t, compiler.Validate("genericTemplate", valid))

	missingSubtitle := []byte(`{"elements":[{"imageUrl":"https://cdn/x.png","title":{"EN":"Plan"}}]}`)
	assert.Error(t, compiler.Validate("genericTemplate", missingSubtitle))
}

func TestCompiler_ValidatePayloadUnion(t *testing.T) {
	compiler, err := NewCompilerWithCache(32)
	require.NoError(t, err)

	token := []byte(`{"quickReplies":[{"text":{"EN":"Yes"},"payload":"YES"}]}`)
	assert.NoError(t, compiler.Validate("quickReply", token))

	target := []byte(`{"quickReplies":[{"text":{"EN":"Yes"},"payload":{"flowId":"5f1b2c3d4e5f6a7b8c9d0e1f"}}]}`)
	assert.NoError(t, compiler.Validate("quickReply", target))

	empty := []byte(`{"quickReplies":[{"text":{"EN":"Yes"},"payload":""}]}`)
	assert.Error(t, compiler.Validate("quickReply", empty))
}

func TestCompiler_Has(t *testing.T) {
	compiler, err := NewCompilerWithCache(32)
	require.NoError(t, err)

	for _, kind := range []string{"message", "imageAttachment", "entitySearch", "function"} {
		assert.True(t, compiler.Has(kind), kind)
	}
	assert.False(t, compiler.Has("images"))
}
