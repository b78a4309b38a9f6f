package stash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Command Parsing Tests
// ============================================================================

func TestParseCommand(t *testing.T) {
	t.Run("ParsesWrite", func(t *testing.T) {
		cmd, err := ParseCommand("WRITE folder/foo.txt")
		require.NoError(t, err)
		assert.Equal(t, VerbWrite, cmd.Verb)
		assert.Equal(t, "folder/foo.txt", cmd.Path)
	})

	t.Run("ParsesGet", func(t *testing.T) {
		cmd, err := ParseCommand("GET docs/readme.txt")
		require.NoError(t, err)
		assert.Equal(t, VerbGet, cmd.Verb)
		assert.Equal(t, "docs/readme.txt", cmd.Path)
	})

	t.Run("ParsesRm", func(t *testing.T) {
		cmd, err := ParseCommand("RM old.dat")
		require.NoError(t, err)
		assert.Equal(t, VerbRm, cmd.Verb)
		assert.Equal(t, "old.dat", cmd.Path)
	})

	t.Run("ParsesStopWithoutPath", func(t *testing.T) {
		cmd, err := ParseCommand("STOP")
		require.NoError(t, err)
		assert.Equal(t, VerbStop, cmd.Verb)
		assert.Empty(t, cmd.Path)
	})

	t.Run("StopIgnoresTrailingArgument", func(t *testing.T) {
		cmd, err := ParseCommand("STOP now")
		require.NoError(t, err)
		assert.Equal(t, VerbStop, cmd.Verb)
		assert.Empty(t, cmd.Path)
	})

	t.Run("IgnoresTokensBeyondPath", func(t *testing.T) {
		cmd, err := ParseCommand("WRITE a.txt b.txt")
		require.NoError(t, err)
		assert.Equal(t, "a.txt", cmd.Path)
	})

	t.Run("TolerateSurroundingWhitespace", func(t *testing.T) {
		cmd, err := ParseCommand("  GET   a.txt  ")
		require.NoError(t, err)
		assert.Equal(t, VerbGet, cmd.Verb)
		assert.Equal(t, "a.txt", cmd.Path)
	})
}

func TestParseCommandErrors(t *testing.T) {
	t.Run("EmptyLine", func(t *testing.T) {
		_, err := ParseCommand("")
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("WhitespaceOnly", func(t *testing.T) {
		_, err := ParseCommand("   ")
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("UnknownVerb", func(t *testing.T) {
		cmd, err := ParseCommand("DELETE a.txt")
		assert.ErrorIs(t, err, ErrUnknownVerb)
		// The verb survives the failure so the responder can echo it.
		assert.Equal(t, "DELETE", cmd.Verb)
	})

	t.Run("LowercaseVerbIsUnknown", func(t *testing.T) {
		_, err := ParseCommand("write a.txt")
		assert.ErrorIs(t, err, ErrUnknownVerb)
	})

	t.Run("MissingPath", func(t *testing.T) {
		for _, verb := range []string{"WRITE", "GET", "RM"} {
			_, err := ParseCommand(verb)
			assert.ErrorIs(t, err, ErrMissingPath, "verb %s", verb)
		}
	})

	t.Run("VerbTooLong", func(t *testing.T) {
		verb := strings.Repeat("X", MaxVerbLen+1)
		_, err := ParseCommand(verb + " a.txt")
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("VerbAtLimitIsStillParsed", func(t *testing.T) {
		verb := strings.Repeat("X", MaxVerbLen)
		_, err := ParseCommand(verb + " a.txt")
		// Length is fine; the verb itself is unknown.
		assert.ErrorIs(t, err, ErrUnknownVerb)
	})

	t.Run("PathTooLong", func(t *testing.T) {
		path := strings.Repeat("p", MaxPathLen+1)
		_, err := ParseCommand("WRITE " + path)
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})

	t.Run("PathAtLimitIsAccepted", func(t *testing.T) {
		path := strings.Repeat("p", MaxPathLen)
		cmd, err := ParseCommand("WRITE " + path)
		require.NoError(t, err)
		assert.Len(t, cmd.Path, MaxPathLen)
	})
}
