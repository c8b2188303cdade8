// Package zap adapts a *zap.SugaredLogger to the applier's LogfProvider
// contract, the same leveled-printf-through-an-AtomicLevel shape the
// PacificaMQ zap logger adapter wraps around zap.Core.
package zap

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/R-omk/cartridge/applier"
)

// Check that Provider implements LogfProvider interface.
var _ applier.LogfProvider = (*Provider)(nil)

// NewProvider wraps logger as an applier.LogfProvider. lvl gates every
// call before the message is formatted, mirroring the AtomicLevel check
// the teacher's adapters perform ahead of the actual log call.
func NewProvider(logger *zap.SugaredLogger, lvl zap.AtomicLevel) *Provider {
	return &Provider{logger: logger, lvl: lvl}
}

// Provider is an adapter from zap to the applier.LogfProvider interface.
type Provider struct {
	logger *zap.SugaredLogger
	lvl    zap.AtomicLevel
}

// Debugf implements Debugf method for LogfProvider interface.
func (p *Provider) Debugf(ctx context.Context, format string, v ...any) {
	if !p.lvl.Enabled(zapcore.DebugLevel) {
		return
	}
	p.logger.Debugf(format, v...)
}

// Infof implements Infof method for LogfProvider interface.
func (p *Provider) Infof(ctx context.Context, format string, v ...any) {
	if !p.lvl.Enabled(zapcore.InfoLevel) {
		return
	}
	p.logger.Infof(format, v...)
}

// Warnf implements Warnf method for LogfProvider interface.
func (p *Provider) Warnf(ctx context.Context, format string, v ...any) {
	if !p.lvl.Enabled(zapcore.WarnLevel) {
		return
	}
	p.logger.Warnf(format, v...)
}

// Errorf implements Errorf method for LogfProvider interface.
func (p *Provider) Errorf(ctx context.Context, format string, v ...any) {
	if !p.lvl.Enabled(zapcore.ErrorLevel) {
		return
	}
	p.logger.Errorf(format, v...)
}
