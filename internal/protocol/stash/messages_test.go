package stash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// Wire Message Tests
// ============================================================================

// The status strings are a wire contract shared with every client in the
// field, so each constructor is pinned to its exact output.
func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SuccessWritten", SuccessWritten(), "SUCCESS: File written successfully"},
		{"SuccessRemoved", SuccessRemoved("docs/a.txt"), "SUCCESS: Removed 'docs/a.txt'"},
		{"SuccessStopping", SuccessStopping(), "SUCCESS: Server stopping"},
		{"ErrorInvalidFormat", ErrorInvalidFormat(), "ERROR: Invalid command format"},
		{"ErrorMissingPath", ErrorMissingPath(), "ERROR: Missing remote path"},
		{"ErrorUnknownCommand", ErrorUnknownCommand("PUT"), "ERROR: Unknown command 'PUT'"},
		{"ErrorInvalidPath", ErrorInvalidPath("../etc/passwd"), "ERROR: Invalid path '../etc/passwd'"},
		{"ErrorFileNotFound", ErrorFileNotFound("missing.txt"), "ERROR: File not found 'missing.txt'"},
		{"ErrorIsDirectory", ErrorIsDirectory("docs"), "ERROR: Path is a directory 'docs'"},
		{"ErrorDirNotEmpty", ErrorDirNotEmpty("docs"), "ERROR: Directory not empty 'docs'"},
		{"ErrorCreateDirectory", ErrorCreateDirectory(), "ERROR: Failed to create directory"},
		{"ErrorCannotCreate", ErrorCannotCreate("a.txt"), "ERROR: Cannot create file 'a.txt'"},
		{"ErrorCannotOpen", ErrorCannotOpen("a.txt"), "ERROR: Cannot open file 'a.txt'"},
		{"ErrorCannotRemove", ErrorCannotRemove("a.txt"), "ERROR: Cannot remove 'a.txt'"},
		{"ErrorInvalidSize", ErrorInvalidSize(), "ERROR: Invalid file size"},
		{"ErrorServerBusy", ErrorServerBusy(), "ERROR: Server busy, try again later"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestStatusClassification(t *testing.T) {
	t.Run("SuccessLines", func(t *testing.T) {
		for _, line := range []string{
			SuccessWritten(),
			SuccessRemoved("a.txt"),
			SuccessStopping(),
			"SUCCESS",
			"SUCCESS: trailing detail",
		} {
			assert.True(t, IsSuccess(line), "line %q", line)
			assert.False(t, IsError(line), "line %q", line)
		}
	})

	t.Run("ErrorLines", func(t *testing.T) {
		for _, line := range []string{
			ErrorFileNotFound("a.txt"),
			ErrorServerBusy(),
			"ERROR",
			"ERROR: something else",
		} {
			assert.True(t, IsError(line), "line %q", line)
			assert.False(t, IsSuccess(line), "line %q", line)
		}
	})

	t.Run("FirstTokenDecides", func(t *testing.T) {
		// Only the leading token counts; mentions later in the line do not.
		assert.False(t, IsSuccess("ERROR: expected SUCCESS here"))
		assert.False(t, IsError("SIZE 10"))
		assert.False(t, IsSuccess("READY"))
		assert.False(t, IsError(""))
		assert.False(t, IsSuccess("successful"))
	})
}

func TestDetail(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"StripsErrorPrefix", "ERROR: File not found 'a.txt'", "File not found 'a.txt'"},
		{"StripsSuccessPrefix", "SUCCESS: Server stopping", "Server stopping"},
		{"BareTokenYieldsEmpty", "ERROR", ""},
		{"NonStatusLineUnchanged", "SIZE 10", "SIZE 10"},
		{"EmptyLine", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detail(tt.line))
		})
	}
}
