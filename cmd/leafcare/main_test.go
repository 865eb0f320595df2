package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/leafcare/internal/domain"
)

func TestParseTask(t *testing.T) {
	testCases := []struct {
		in   string
		want domain.TaskType
		ok   bool
	}{
		{in: "water", want: domain.Water, ok: true},
		{in: "FERTILIZE", want: domain.Fertilize, ok: true},
		{in: "Mist", want: domain.Mist, ok: true},
		{in: "sing", ok: false},
		{in: "", ok: false},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := parseTask(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "leafcare dev\n", out)
}

func TestCompleteThenDue(t *testing.T) {
	db := filepath.Join(t.TempDir(), "leafcare.db")

	out, err := run(t, "--storage.path", db, "due")
	require.NoError(t, err)
	assert.Equal(t, "Nothing due today.\n", out)

	out, err = run(t, "--storage.path", db, "complete", "p1", "water")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Recorded Water for p1"))

	_, err = run(t, "--storage.path", db, "complete", "p1", "sing")
	assert.Error(t, err)
}
