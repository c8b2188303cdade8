package applier

import (
	"context"
	"log"
	"time"
)

// LogfProvider is the optional logging dependency every component in this
// package takes through Config, mirroring the teacher's LogfProvider shape
// (Debugf/Infof/Warnf/Errorf(ctx, format, args...)) so the slog/zap adapters
// under providers/ can be reused unchanged.
type LogfProvider interface {
	Debugf(ctx context.Context, format string, v ...any)
	Infof(ctx context.Context, format string, v ...any)
	Warnf(ctx context.Context, format string, v ...any)
	Errorf(ctx context.Context, format string, v ...any)
}

type emptyLogfProviderType struct{}

func (emptyLogfProviderType) Debugf(context.Context, string, ...any) {}
func (emptyLogfProviderType) Infof(context.Context, string, ...any)  {}
func (emptyLogfProviderType) Warnf(context.Context, string, ...any)  {}
func (emptyLogfProviderType) Errorf(context.Context, string, ...any) {}

// emptyLogfProvider is the default used by prepareCfg when Config.Loggerf is nil.
var emptyLogfProvider = emptyLogfProviderType{}

// StdoutLoggerf is a minimal LogfProvider that writes to the standard
// library logger, useful for local development — the same role the
// teacher's StdoutLoggerf plays in its own test/demo code.
type StdoutLoggerf struct{}

func (StdoutLoggerf) Debugf(_ context.Context, format string, v ...any) {
	log.Printf("DEBUG "+format, v...)
}

func (StdoutLoggerf) Infof(_ context.Context, format string, v ...any) {
	log.Printf("INFO "+format, v...)
}

func (StdoutLoggerf) Warnf(_ context.Context, format string, v ...any) {
	log.Printf("WARN "+format, v...)
}

func (StdoutLoggerf) Errorf(_ context.Context, format string, v ...any) {
	log.Printf("ERROR "+format, v...)
}

// MetricsProvider is the optional metrics dependency, carrying the handful
// of events a clusterwide applier actually needs to surface: how long a
// local apply pass took, the outcome of each 2PC phase per peer, and
// whether the failover worker is currently running.
type MetricsProvider interface {
	ApplyDuration(d time.Duration, success bool)
	TwoPCEvent(phase string, success bool, peerURI string)
	FailoverRunning(running bool)
}

type emptyMetricsProviderType struct{}

func (emptyMetricsProviderType) ApplyDuration(time.Duration, bool)    {}
func (emptyMetricsProviderType) TwoPCEvent(string, bool, string)      {}
func (emptyMetricsProviderType) FailoverRunning(bool)                 {}

var emptyMetricsProvider = emptyMetricsProviderType{}

// ReplicationConfigurator reconfigures the underlying database runtime's
// replication set, the "underlying storage/database runtime whose knobs
// are being tuned" collaborator spec.md lists out of scope. The default
// no-op lets the local applier's replication step run (and log) against
// any instance that never wires a real one in.
type ReplicationConfigurator interface {
	Reconfigure(ctx context.Context, uris []string) error
}

type noopReplicationConfigurator struct{}

func (noopReplicationConfigurator) Reconfigure(context.Context, []string) error { return nil }

var emptyReplicationConfigurator = noopReplicationConfigurator{}
