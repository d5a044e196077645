package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_Levels(t *testing.T) {
	cases := map[string]bool{
		"debug": true,
		"info":  false,
		"":      false,
	}
	for level, debugEnabled := range cases {
		log, err := New("prod", level)
		require.NoError(t, err)
		assert.Equal(t, debugEnabled, log.Core().Enabled(zap.DebugLevel), "level %q", level)
		assert.True(t, log.Core().Enabled(zap.ErrorLevel))
	}
}
