package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sudo-init-do/agrihub/internal/config"
)

func TestInitLevel(t *testing.T) {
	c := config.Default()
	c.LogLevel = "debug"
	require.NoError(t, Init(c))
	assert.True(t, NewSublogger("test").Logger.IsLevelEnabled(logrus.DebugLevel))

	c.LogLevel = "loud"
	assert.Error(t, Init(c))
}

func TestSubloggerModule(t *testing.T) {
	e := NewSublogger("negotiation")
	assert.Equal(t, "agrihub.negotiation", e.Data["module"])
}
