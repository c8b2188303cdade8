package applier

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/R-omk/cartridge/config"
	"github.com/R-omk/cartridge/topology"
	"github.com/R-omk/cartridge/transport"
)

// preparePeerTimeout bounds each peer's prepare_2pc call (spec.md §5:
// "in-flight RPCs to peers honour an explicit 5-second timeout during
// prepare"). Commit and abort calls carry no timeout of their own.
const preparePeerTimeout = 5 * time.Second

// PatchClusterwide is the 2PC Coordinator's entry point (spec.md §4.F). It
// merges patch into the active config, validates the result locally, then
// drives prepare/commit (or abort) across every participant in sorted-URI
// order.
func (a *Applier) PatchClusterwide(ctx context.Context, patch config.Patch) error {
	if !a.lock.TryAcquire() {
		return errAtomicLockHeld()
	}
	defer a.lock.Release()

	a.mu.RLock()
	oldConf := a.activeConf
	a.mu.RUnlock()

	newConf := config.Merge(oldConf, patch)

	if err := a.vldtr.Validate(ctx, newConf, oldConf); err != nil {
		return err
	}

	uris, err := a.participantURIs(newConf, oldConf)
	if err != nil {
		return err
	}

	prepared, prepareErr := a.preparePeers(ctx, uris, newConf)
	if prepareErr != nil {
		a.abortPeers(context.Background(), prepared)
		return prepareErr
	}

	return a.commitPeers(context.Background(), uris)
}

// participantURIs implements spec.md §4.F step 5: every server UUID present
// in newConf's topology that is not expelled, not disabled, and already
// known in oldConf's topology, sorted by URI.
func (a *Applier) participantURIs(newConf, oldConf config.Document) ([]string, error) {
	knownRoles := a.cfg.Roles.GetKnownRoles()

	newTopo, err := topology.FromSection(newConf["topology"], knownRoles)
	if err != nil {
		return nil, config.Wrap(config.KindConfigValidate, "parsing new topology", err)
	}

	var oldServers map[uuid.UUID]topology.Server
	if oldConf != nil {
		oldTopo, err := topology.FromSection(oldConf["topology"], knownRoles)
		if err != nil {
			return nil, config.Wrap(config.KindConfigValidate, "parsing previous topology", err)
		}
		oldServers = oldTopo.Servers
	}

	uris := make([]string, 0, len(newTopo.Servers))

	for id, srv := range newTopo.Servers {
		if srv.IsExpelled || srv.Disabled || srv.URI == "" {
			continue
		}

		if old, known := oldServers[id]; !known || old.IsExpelled {
			continue
		}

		uris = append(uris, srv.URI)
	}

	sort.Strings(uris)

	return uris, nil
}

// preparePeers connects to each URI in order and invokes prepare_2pc,
// stopping at the first failure (spec.md §4.F step 6). It returns the URIs
// that successfully prepared, which is the full list on success and a
// strict prefix on failure.
func (a *Applier) preparePeers(ctx context.Context, uris []string, newConf config.Document) (prepared []string, err error) {
	for _, uri := range uris {
		conn, dialErr := a.cfg.Transport.Get(ctx, uri)
		if dialErr != nil {
			return prepared, config.Wrap(config.KindConfigApply, "connecting to "+uri+" for prepare", dialErr)
		}

		callCtx, cancel := context.WithTimeout(ctx, preparePeerTimeout)
		resp, callErr := conn.Call(callCtx, transport.EndpointPrepare2PC, []any{newConf})
		cancel()

		a.cfg.Metrics.TwoPCEvent("prepare", callErr == nil && resp.Bool(0), uri)

		if callErr != nil {
			return prepared, config.Wrap(config.KindConfigApply, "prepare_2pc on "+uri, callErr)
		}

		if !resp.Bool(0) {
			return prepared, config.Wrap(config.KindConfigApply, "prepare_2pc on "+uri+" refused: "+resp.String(1), nil)
		}

		prepared = append(prepared, uri)
	}

	return prepared, nil
}

// commitPeers issues commit_2pc to every URI, continuing past per-peer
// failures (spec.md §4.F step 7: "no automatic rollback is possible once
// any peer has committed"). The first error encountered is returned after
// every peer has been contacted.
func (a *Applier) commitPeers(ctx context.Context, uris []string) error {
	var firstErr error

	for _, uri := range uris {
		conn, dialErr := a.cfg.Transport.Get(ctx, uri)
		if dialErr != nil {
			a.cfg.Loggerf.Errorf(ctx, "connecting to %s for commit: %v", uri, dialErr)
			if firstErr == nil {
				firstErr = config.Wrap(config.KindConfigApply, "connecting to "+uri+" for commit", dialErr)
			}
			continue
		}

		resp, callErr := conn.Call(ctx, transport.EndpointCommit2PC, nil)
		ok := callErr == nil && resp.Bool(0)
		a.cfg.Metrics.TwoPCEvent("commit", ok, uri)

		if callErr != nil {
			a.cfg.Loggerf.Errorf(ctx, "commit_2pc on %s: %v", uri, callErr)
			if firstErr == nil {
				firstErr = config.Wrap(config.KindConfigApply, "commit_2pc on "+uri, callErr)
			}
			continue
		}

		if !ok {
			a.cfg.Loggerf.Errorf(ctx, "commit_2pc on %s refused: %s", uri, resp.String(1))
			if firstErr == nil {
				firstErr = config.Wrap(config.KindConfigApply, "commit_2pc on "+uri+" refused: "+resp.String(1), nil)
			}
		}
	}

	return firstErr
}

// abortPeers issues abort_2pc to every URI that successfully prepared
// (spec.md §4.F step 7's else-branch), logging each outcome but never
// failing the round on an abort error — abort_2pc is idempotent.
func (a *Applier) abortPeers(ctx context.Context, uris []string) {
	for _, uri := range uris {
		conn, dialErr := a.cfg.Transport.Get(ctx, uri)
		if dialErr != nil {
			a.cfg.Loggerf.Errorf(ctx, "connecting to %s for abort: %v", uri, dialErr)
			continue
		}

		_, callErr := conn.Call(ctx, transport.EndpointAbort2PC, nil)
		a.cfg.Metrics.TwoPCEvent("abort", callErr == nil, uri)

		if callErr != nil {
			a.cfg.Loggerf.Errorf(ctx, "abort_2pc on %s: %v", uri, callErr)
		} else {
			a.cfg.Loggerf.Infof(ctx, "abort_2pc on %s: done", uri)
		}
	}
}

// Dispatch is the inbound RPC entry point: it resolves endpoint to one of
// the stable peer endpoints of spec.md §6 and runs it against this
// instance. Callers register it with a transport.Pool's server side (e.g.
// transport.InProcess.Register) under this instance's own URI.
func (a *Applier) Dispatch(ctx context.Context, endpoint string, args []any) (transport.Response, error) {
	switch endpoint {
	case transport.EndpointLoadFromFile:
		return a.handleLoadFromFile(ctx)
	case transport.EndpointPrepare2PC:
		return a.handlePrepare2PC(ctx, args)
	case transport.EndpointCommit2PC:
		return a.handleCommit2PC(ctx)
	case transport.EndpointAbort2PC:
		return a.handleAbort2PC(ctx)
	case transport.EndpointValidateConf:
		return a.handleValidateConfig(ctx, args)
	case transport.EndpointApplyConf:
		return a.handleApplyConfig(ctx, args)
	default:
		return transport.Response{}, transport.ErrCallFailed
	}
}

func (a *Applier) handleLoadFromFile(ctx context.Context) (transport.Response, error) {
	doc, err := a.store.Load(a.activePath())
	if err != nil {
		return transport.Response{}, err
	}

	return transport.Response{Data: []any{doc}}, nil
}

// handlePrepare2PC is a participant's prepare step (spec.md §4.F step 6):
// validate_config against the proposed document, then exclusively create
// config.prepare.yml — the file doubles as the cluster-visible lock.
func (a *Applier) handlePrepare2PC(ctx context.Context, args []any) (transport.Response, error) {
	conf, ok := argDocument(args, 0)
	if !ok {
		return transport.Response{Data: []any{false, "missing conf_new argument"}}, nil
	}

	a.mu.RLock()
	oldConf := a.activeConf
	a.mu.RUnlock()

	if err := a.vldtr.Validate(ctx, conf, oldConf); err != nil {
		return transport.Response{Data: []any{false, err.Error()}}, nil
	}

	if err := a.store.WriteExclusive(a.preparePath(), conf); err != nil {
		return transport.Response{Data: []any{false, err.Error()}}, nil
	}

	return transport.Response{Data: []any{true, ""}}, nil
}

// handleCommit2PC is a participant's commit step: promote the prepared file
// into place and run the local applier on it.
func (a *Applier) handleCommit2PC(ctx context.Context) (transport.Response, error) {
	conf, err := a.store.Load(a.preparePath())
	if err != nil {
		return transport.Response{Data: []any{false, err.Error()}}, nil
	}

	if err := a.store.Promote(a.preparePath(), a.activePath(), a.backupPath(), func(linkErr error) {
		a.cfg.Loggerf.Warnf(ctx, "hard-linking backup failed: %v", linkErr)
	}); err != nil {
		return transport.Response{Data: []any{false, err.Error()}}, nil
	}

	if err := a.submitToWorker(ctx, conf); err != nil {
		return transport.Response{Data: []any{false, err.Error()}}, nil
	}

	return transport.Response{Data: []any{true, ""}}, nil
}

// handleAbort2PC unlinks this participant's prepare file. Idempotent.
func (a *Applier) handleAbort2PC(ctx context.Context) (transport.Response, error) {
	if err := a.store.Unlink(a.preparePath()); err != nil {
		return transport.Response{Data: []any{false}}, nil
	}

	return transport.Response{Data: []any{true}}, nil
}

// handleValidateConfig is the older single-call protocol form (spec.md §6:
// "used by older protocol form").
func (a *Applier) handleValidateConfig(ctx context.Context, args []any) (transport.Response, error) {
	conf, ok := argDocument(args, 0)
	if !ok {
		return transport.Response{Data: []any{false, "missing conf_new argument"}}, nil
	}

	a.mu.RLock()
	oldConf := a.activeConf
	a.mu.RUnlock()

	if err := a.vldtr.Validate(ctx, conf, oldConf); err != nil {
		return transport.Response{Data: []any{false, err.Error()}}, nil
	}

	return transport.Response{Data: []any{true, ""}}, nil
}

func (a *Applier) handleApplyConfig(ctx context.Context, args []any) (transport.Response, error) {
	conf, ok := argDocument(args, 0)
	if !ok {
		return transport.Response{Data: []any{false, "missing conf argument"}}, nil
	}

	if err := a.Apply(ctx, conf); err != nil {
		return transport.Response{Data: []any{false, err.Error()}}, nil
	}

	return transport.Response{Data: []any{true, ""}}, nil
}

func argDocument(args []any, i int) (config.Document, bool) {
	if i < 0 || i >= len(args) {
		return nil, false
	}

	doc, ok := args[i].(config.Document)

	return doc, ok
}
