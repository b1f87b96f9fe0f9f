package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewFromZap_CarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := NewFromZap(zap.New(core)).Named("provisioner").With("run_id", "r1")

	log.Info("index created", "namespace", "users")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "index created", entries[0].Message)
	assert.Equal(t, "provisioner", entries[0].LoggerName)

	ctx := entries[0].ContextMap()
	assert.Equal(t, "r1", ctx["run_id"])
	assert.Equal(t, "users", ctx["namespace"])
}

func TestNew_FallsBackToInfoOnBadLevel(t *testing.T) {
	log := New(Config{Level: "loud", Format: "console", Output: "stderr"})
	assert.NotNil(t, log)
	log.Debug("not emitted")
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	log.Warn("ignored", "k", "v")
	assert.NotNil(t, log.With("a", 1))
}
