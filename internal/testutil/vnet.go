// Package testutil holds helpers shared by package tests.
package testutil

import (
	"testing"

	pionlogging "github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// Addresses of the two hosts on a LAN.
const (
	MeterIP  = "10.0.0.1"
	SenderIP = "10.0.0.2"
)

// LAN is an emulated IPv4 network with a meter host and a sender host.
type LAN struct {
	Router *vnet.Router
	Meter  *vnet.Net
	Sender *vnet.Net
}

// NewLAN starts a LAN on 10.0.0.0/24. The router is stopped when the test ends.
func NewLAN(t testing.TB) *LAN {
	t.Helper()

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: NewLoggerFactory(),
	})
	require.NoError(t, err)

	meter, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{MeterIP}})
	require.NoError(t, err)
	require.NoError(t, router.AddNet(meter))

	sender, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{SenderIP}})
	require.NoError(t, err)
	require.NoError(t, router.AddNet(sender))

	require.NoError(t, router.Start())
	t.Cleanup(func() { _ = router.Stop() })

	return &LAN{Router: router, Meter: meter, Sender: sender}
}

// LoggerFactory routes pion component logs through logrus.
type LoggerFactory struct {
	Logger *log.Logger
}

// NewLoggerFactory returns a factory backed by the standard logrus logger.
func NewLoggerFactory() *LoggerFactory {
	return &LoggerFactory{Logger: log.StandardLogger()}
}

// NewLogger implements pionlogging.LoggerFactory.
func (f *LoggerFactory) NewLogger(scope string) pionlogging.LeveledLogger {
	return &leveledLogger{entry: f.Logger.WithField("scope", scope)}
}

type leveledLogger struct {
	entry *log.Entry
}

func (l *leveledLogger) Trace(msg string)                          { l.entry.Trace(msg) }
func (l *leveledLogger) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }
func (l *leveledLogger) Debug(msg string)                          { l.entry.Debug(msg) }
func (l *leveledLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *leveledLogger) Info(msg string)                           { l.entry.Info(msg) }
func (l *leveledLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *leveledLogger) Warn(msg string)                           { l.entry.Warn(msg) }
func (l *leveledLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *leveledLogger) Error(msg string)                          { l.entry.Error(msg) }
func (l *leveledLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
