package log

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetLevel(t *testing.T) {
	defer func() { _ = SetLevel("info") }()

	assert.NoError(t, SetLevel("DEBUG"))
	assert.Equal(t, logrus.DebugLevel, GetLogger().GetLevel())

	assert.NoError(t, SetLevel("warn"))
	assert.Equal(t, logrus.WarnLevel, GetLogger().GetLevel())

	assert.NoError(t, SetLevel(""))
	assert.Equal(t, logrus.InfoLevel, GetLogger().GetLevel())

	err := SetLevel("loud")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "loud"`)
	assert.Equal(t, logrus.InfoLevel, GetLogger().GetLevel())
}
