package utils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/datastory/internal/utils"
)

func TestCountTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		min  int
	}{
		{"empty", "", 0},
		{"simple", "hello world", 2},
		{"long", strings.Repeat("a", 4000), 900},
	}
	for _, c := range cases {
		assert.GreaterOrEqual(t, utils.CountTokens(c.in), c.min, c.name)
	}
	assert.Equal(t, 1, utils.CountTokens("ab"))
}

func TestTruncateToTokenLimit(t *testing.T) {
	text := strings.Repeat("abcd ", 1000)
	trunc := utils.TruncateToTokenLimit(text, 300)
	assert.LessOrEqual(t, utils.CountTokens(trunc), 300)
	assert.NotEmpty(t, trunc)
	assert.Empty(t, utils.TruncateToTokenLimit(text, 0))
	assert.Equal(t, "short", utils.TruncateToTokenLimit("short", 10))
}

func TestTruncateToTokenLimitKeepsWholeLines(t *testing.T) {
	text := "first fact here\nsecond fact here\nthird fact here"
	assert.Equal(t, "first fact here\nsecond fact here", utils.TruncateToTokenLimit(text, 9))
	assert.Equal(t, "first fact here", utils.TruncateToTokenLimit(text, 5))
	assert.Equal(t, "first fa", utils.TruncateToTokenLimit(text, 2), "no line break inside the budget")
}

func TestSafeWriteFileReplacesWhole(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "stat.json")
	require.NoError(t, utils.SafeWriteFile(path, []byte("first")))
	require.NoError(t, utils.SafeWriteFile(path, []byte("second")))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
