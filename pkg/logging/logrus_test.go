package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestCreateLogger(t *testing.T) {
	level := "info"
	log := NewLogrus(level, os.Stdout)

	assert.Equal(t, log.level, level)
}

func TestGetLogger(t *testing.T) {
	level := "info"
	log := NewLogrus(level, os.Stdout)
	logger := log.Get("Testing")
	assert.Equal(t, logger.Logger.Out, os.Stdout)
	assert.Equal(t, "Testing", logger.Data["Context"])
}

func TestGivenInvalidLevelThenFallbackToInfo(t *testing.T) {
	logger := NewLogrus("loud", os.Stdout).Get("Testing")
	assert.Equal(t, logrus.InfoLevel, logger.Logger.GetLevel())
}

func TestGivenNodeThenEveryEntryCarriesIt(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogrus("debug", &out).WithNode(42).WithJSON().Get("Store")
	logger.Info("loaded")

	assert.Equal(t, uint32(42), logger.Data["Node"])
	assert.Contains(t, out.String(), `"Node":42`)
	assert.Contains(t, out.String(), `"Context":"Store"`)
}
