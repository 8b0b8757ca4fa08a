package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReanalyzeFlagsRegistered(t *testing.T) {
	assert.NotNil(t, reanalyzeCmd.Flags().Lookup("threshold"))
	assert.NotNil(t, reanalyzeCmd.Flags().Lookup("batch-size"))
}

func TestIntFlagOr(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	var threshold, batchSize int
	c.Flags().IntVar(&threshold, "threshold", 0, "")
	c.Flags().IntVar(&batchSize, "batch-size", 0, "")
	require.NoError(t, c.ParseFlags([]string{"--batch-size", "2"}))

	// set on the command line wins; unset falls back to config
	assert.Equal(t, 2, intFlagOr(c, "batch-size", batchSize, 5))
	assert.Equal(t, 85, intFlagOr(c, "threshold", threshold, 85))
}
