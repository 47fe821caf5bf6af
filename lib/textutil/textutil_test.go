package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeSpace(t *testing.T) {
	require.Equal(t, "Page 12 of 340", NormalizeSpace("  Page 12\n of\t340 "))
	require.Equal(t, "", NormalizeSpace(" \n\t "))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", Truncate("abc", 5))
	require.Equal(t, "abcde", Truncate("abcdefgh", 5))
}
