package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tierfs/tierfs/pkg/types"
)

func TestTypePredicates(t *testing.T) {
	assert.True(t, IsFile(types.ModeRegular|0o644))
	assert.True(t, IsDirectory(types.ModeDirectory|0o755))
	assert.True(t, IsSymbolicLink(types.ModeSymlink|0o777))
	assert.True(t, IsBlockDevice(types.ModeBlock))
	assert.True(t, IsCharacterDevice(types.ModeCharacter))
	assert.True(t, IsFIFO(types.ModeFIFO))
	assert.True(t, IsSocket(types.ModeSocket))

	// A symlink is not a file even if its target would be.
	assert.False(t, IsFile(types.ModeSymlink|0o777))
	assert.False(t, IsDirectory(types.ModeRegular|0o755))
}

func TestModeToString(t *testing.T) {
	for _, test := range []struct {
		mode uint32
		want string
	}{
		{0o755, "rwxr-xr-x"},
		{0o644, "rw-r--r--"},
		{0o000, "---------"},
		{0o777, "rwxrwxrwx"},
		{0o4755, "rwsr-xr-x"},
		{0o4644, "rwSr--r--"},
		{0o2755, "rwxr-sr-x"},
		{0o2745, "rwxr-Sr-x"},
		{0o1777, "rwxrwxrwt"},
		{0o1776, "rwxrwxrwT"},
	} {
		assert.Equal(t, test.want, ModeToString(test.mode), "mode %o", test.mode)
	}
}

func TestFileTypeChar(t *testing.T) {
	assert.Equal(t, byte('-'), FileTypeChar(types.ModeRegular|0o644))
	assert.Equal(t, byte('d'), FileTypeChar(types.ModeDirectory))
	assert.Equal(t, byte('l'), FileTypeChar(types.ModeSymlink))
	assert.Equal(t, byte('b'), FileTypeChar(types.ModeBlock))
	assert.Equal(t, byte('c'), FileTypeChar(types.ModeCharacter))
	assert.Equal(t, byte('p'), FileTypeChar(types.ModeFIFO))
	assert.Equal(t, byte('s'), FileTypeChar(types.ModeSocket))
	assert.Equal(t, byte('?'), FileTypeChar(0))
}
