package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "notestream", cmd.Use)
	assert.Contains(t, cmd.Long, "streams")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"init", "apply", "stream", "entity-stream", "explain",
		"follow", "unfollow", "followers", "post", "test",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "metadata", "db"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "", flag.DefValue, name)
	}
}

func TestStreamCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	streamCmd, _, err := cmd.Find([]string{"stream"})
	require.NoError(t, err)

	for _, name := range []string{"user", "as", "offset", "max-size", "filter", "after", "skip-own", "text", "named"} {
		assert.NotNil(t, streamCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "", streamCmd.Flags().Lookup("as").DefValue)
}

func TestEntityStreamCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	entityCmd, _, err := cmd.Find([]string{"entity-stream"})
	require.NoError(t, err)

	asFlag := entityCmd.Flags().Lookup("as")
	require.NotNil(t, asFlag)
	assert.Equal(t, "system", asFlag.DefValue)
	assert.Nil(t, entityCmd.Flags().Lookup("user"))
}

func TestApplyCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	applyCmd, _, err := cmd.Find([]string{"apply"})
	require.NoError(t, err)

	queueFlag := applyCmd.Flags().Lookup("queue")
	require.NotNil(t, queueFlag)
	assert.Equal(t, "false", queueFlag.DefValue)
}

func TestPostCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	postCmd, _, err := cmd.Find([]string{"post"})
	require.NoError(t, err)

	for _, name := range []string{"as", "parent", "text", "users", "teams", "portals", "global", "internal"} {
		assert.NotNil(t, postCmd.Flags().Lookup(name), name)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	assert.NotNil(t, testCmd.Flags().Lookup("filter"))
	assert.NotNil(t, testCmd.Flags().Lookup("golden"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "test", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
