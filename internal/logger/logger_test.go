package logger

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const (
	textInfoString  = `severity=INFO msg=www.infoExample.com`
	textErrorString = `severity=ERROR msg=www.errorExample.com`
	jsonInfoString  = `"severity":"INFO"`
)

type LoggerTest struct {
	suite.Suite
	buf bytes.Buffer
}

func TestLoggerSuite(t *testing.T) { suite.Run(t, new(LoggerTest)) }

func (t *LoggerTest) SetupTest() {
	t.buf.Reset()
	defaultLoggerFactory.format = "text"
	setLoggingLevel(Trace, programLevel)
	SetOutput(&t.buf)
}

func (t *LoggerTest) TestOffSuppressesEverything() {
	setLoggingLevel(Off, programLevel)
	Errorf("www.errorExample.com")
	assert.Empty(t.T(), t.buf.String())
}

func (t *LoggerTest) TestInfoIsLoggedAtInfoLevel() {
	setLoggingLevel(Info, programLevel)
	Infof("www.infoExample.com")
	assert.Regexp(t.T(), regexp.MustCompile(regexp.QuoteMeta(textInfoString)), t.buf.String())
}

func (t *LoggerTest) TestDebugSuppressedAtInfoLevel() {
	setLoggingLevel(Info, programLevel)
	Debugf("www.debugExample.com")
	assert.Empty(t.T(), t.buf.String())
}

func (t *LoggerTest) TestJSONFormat() {
	defaultLoggerFactory.format = "json"
	setLoggingLevel(Trace, programLevel)
	SetOutput(&t.buf)
	Infof("www.infoExample.com")
	assert.Contains(t.T(), t.buf.String(), jsonInfoString)
}

func (t *LoggerTest) TestErrorAlwaysLoggedAboveOff() {
	setLoggingLevel(Error, programLevel)
	Errorf("www.errorExample.com")
	assert.Regexp(t.T(), regexp.MustCompile(regexp.QuoteMeta(textErrorString)), t.buf.String())
}

func (t *LoggerTest) TestStdLoggerWritesThroughToDefaultOutput() {
	stdLogger := StdLogger(Error, "fuse: ")
	stdLogger.Print("mount failed")
	assert.Contains(t.T(), t.buf.String(), "mount failed")
}
