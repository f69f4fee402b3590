// cmd/library/main_test.go
package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"serve"}, {"migrate"}, {"remind"}, {"sweep", "overdue"}, {"sweep", "reservations"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestSweepsRunAgainstMemoryStorage(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("APP_MODE", "test")

	for _, args := range [][]string{
		{"--env-file", "", "migrate"},
		{"--env-file", "", "sweep", "overdue"},
		{"--env-file", "", "sweep", "reservations"},
		{"--env-file", "", "remind"},
	} {
		root := newRootCmd()
		root.SetArgs(args)
		require.NoError(t, root.ExecuteContext(context.Background()), args)
	}
}

func TestInvalidConfigFailsFast(t *testing.T) {
	t.Setenv("STORAGE", "cassette")
	root := newRootCmd()
	root.SetArgs([]string{"--env-file", "", "migrate"})
	assert.ErrorContains(t, root.ExecuteContext(context.Background()), "STORAGE")
}
