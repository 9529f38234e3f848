package mgcli

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
	"testing"
)

func TestError(t *testing.T) {
	err := Error("agent failed:", errors.New("EOF"))
	ec, ok := err.(cli.ExitCoder)
	require.True(t, ok)
	assert.Equal(t, 1, ec.ExitCode())
	assert.Equal(t, "agent failed: EOF", err.Error())

	assert.Equal(t, "no files", Error("no files", nil).Error())
}

func TestAction(t *testing.T) {
	act := Action(func(*cli.Context) error { return errors.New("boom") })
	err := act(nil)
	ec, ok := err.(cli.ExitCoder)
	require.True(t, ok)
	assert.Equal(t, 1, ec.ExitCode())
	assert.Equal(t, "boom", err.Error())

	custom := cli.NewExitError("", 2)
	assert.Equal(t, custom, Action(func(*cli.Context) error { return custom })(nil))
	assert.NoError(t, Action(func(*cli.Context) error { return nil })(nil))
}
