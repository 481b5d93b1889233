package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostStatus_Terminal(t *testing.T) {
	t.Parallel()

	require.True(t, PostStatusSent.Terminal())
	require.True(t, PostStatusArchived.Terminal())
	require.False(t, PostStatusNew.Terminal())
	require.False(t, PostStatusFailed.Terminal())
	require.False(t, PostStatusPublished.Terminal())
}

func TestPostStatus_Valid(t *testing.T) {
	t.Parallel()

	for _, s := range []PostStatus{
		PostStatusNew, PostStatusGenerated, PostStatusPublished,
		PostStatusSent, PostStatusFailed, PostStatusArchived,
	} {
		require.True(t, s.Valid(), "status %q", s)
	}
	require.False(t, PostStatus("queued").Valid())
}

func TestNormalizeKeyword(t *testing.T) {
	t.Parallel()

	require.Equal(t, "golang", NormalizeKeyword("  GoLang "))
	require.Equal(t, "ai", NormalizeKeyword("#AI"))
	require.Equal(t, "", NormalizeKeyword("  "))
}

func TestPost_HasKeyword(t *testing.T) {
	t.Parallel()

	post := &Post{Keywords: []*Keyword{{Word: "python"}}}
	require.True(t, post.HasKeyword("Python"))
	require.True(t, post.HasKeyword("#python"))
	require.False(t, post.HasKeyword("rust"))
}
