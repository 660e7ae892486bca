package pathutil

import (
	"github.com/tierfs/tierfs/pkg/types"
)

// Type predicates keyed on the S_IFMT bits. These exclude symlinks even
// when the resolved target would qualify; resolution is the caller's job.

func IsFile(mode uint32) bool            { return mode&types.ModeTypeMask == types.ModeRegular }
func IsDirectory(mode uint32) bool       { return mode&types.ModeTypeMask == types.ModeDirectory }
func IsSymbolicLink(mode uint32) bool    { return mode&types.ModeTypeMask == types.ModeSymlink }
func IsBlockDevice(mode uint32) bool     { return mode&types.ModeTypeMask == types.ModeBlock }
func IsCharacterDevice(mode uint32) bool { return mode&types.ModeTypeMask == types.ModeCharacter }
func IsFIFO(mode uint32) bool            { return mode&types.ModeTypeMask == types.ModeFIFO }
func IsSocket(mode uint32) bool          { return mode&types.ModeTypeMask == types.ModeSocket }

// ModeToString renders the 9-character permission string ("rwxr-xr-x"),
// honoring setuid, setgid, and sticky in the execute columns.
func ModeToString(mode uint32) string {
	var b [9]byte
	flags := []struct {
		bit uint32
		ch  byte
	}{
		{0o400, 'r'}, {0o200, 'w'}, {0o100, 'x'},
		{0o040, 'r'}, {0o020, 'w'}, {0o010, 'x'},
		{0o004, 'r'}, {0o002, 'w'}, {0o001, 'x'},
	}
	for i, f := range flags {
		if mode&f.bit != 0 {
			b[i] = f.ch
		} else {
			b[i] = '-'
		}
	}
	if mode&types.ModeSetUID != 0 {
		if b[2] == 'x' {
			b[2] = 's'
		} else {
			b[2] = 'S'
		}
	}
	if mode&types.ModeSetGID != 0 {
		if b[5] == 'x' {
			b[5] = 's'
		} else {
			b[5] = 'S'
		}
	}
	if mode&types.ModeSticky != 0 {
		if b[8] == 'x' {
			b[8] = 't'
		} else {
			b[8] = 'T'
		}
	}
	return string(b[:])
}

// FileTypeChar returns the ls-style type character for a mode.
func FileTypeChar(mode uint32) byte {
	switch mode & types.ModeTypeMask {
	case types.ModeRegular:
		return '-'
	case types.ModeDirectory:
		return 'd'
	case types.ModeSymlink:
		return 'l'
	case types.ModeBlock:
		return 'b'
	case types.ModeCharacter:
		return 'c'
	case types.ModeFIFO:
		return 'p'
	case types.ModeSocket:
		return 's'
	}
	return '?'
}
