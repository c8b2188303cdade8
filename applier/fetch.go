package applier

import (
	"context"
	"errors"
	"math/rand"

	"github.com/R-omk/cartridge/config"
	"github.com/R-omk/cartridge/topology"
	"github.com/R-omk/cartridge/transport"
)

// fetchFromMembership implements the Peer Fetcher (spec.md §4.G): pick a
// live, caught-up peer via membership and pull its active config. hint may
// be nil, in which case every known member is a candidate.
func (a *Applier) fetchFromMembership(ctx context.Context, hint *topology.Topology) (config.Document, error) {
	if a.fallsBackToDisk(hint) {
		return a.store.Load(a.activePath())
	}

	candidates := a.fetchCandidates(hint)
	if len(candidates) == 0 {
		return nil, nil
	}

	chosen := candidates[rand.Intn(len(candidates))] //nolint:gosec // peer selection, not a security boundary

	conn, err := a.cfg.Transport.Get(ctx, chosen)
	if err != nil {
		return nil, config.Wrap(config.KindConfigFetch, "connecting to "+chosen, err)
	}

	resp, err := conn.Call(ctx, transport.EndpointLoadFromFile, nil)
	if err != nil {
		return nil, config.Wrap(config.KindConfigFetch, "load_from_file on "+chosen, err)
	}

	doc, ok := argDocument(resp.Data, 0)
	if !ok {
		return nil, config.Wrap(config.KindConfigFetch, "load_from_file on "+chosen+" returned no document", nil)
	}

	return doc, nil
}

// fallsBackToDisk implements spec.md §4.G's first bullet exactly: "if
// topology_hint is provided and either (my UUID not in it), or (my entry is
// expelled), or (only one server total), fall back to loading from local
// disk". A nil hint is the "no hint" case, not a hint that fails these
// checks — it falls through to membership enumeration instead, which is
// what a genuinely fresh instance (no topology of its own yet) relies on.
func (a *Applier) fallsBackToDisk(hint *topology.Topology) bool {
	if hint == nil {
		return false
	}

	if len(hint.Servers) <= 1 {
		return true
	}

	myself, known := hint.Servers[a.cfg.MyUUID]

	return !known || myself.IsExpelled
}

// fetchCandidates enumerates membership, keeping exactly the URIs spec.md
// §4.G describes: alive, has a UUID payload, no error payload, not myself,
// and present (non-expelled) in hint if one was given.
func (a *Applier) fetchCandidates(hint *topology.Topology) []string {
	myself := a.cfg.Membership.Myself()

	var out []string

	for _, m := range a.cfg.Membership.Pairs() {
		if !m.Alive || !m.HasUUID {
			continue
		}

		if _, hasError := m.Payload["error"]; hasError {
			continue
		}

		if myself.HasUUID && m.UUID == myself.UUID {
			continue
		}

		if hint != nil {
			srv, known := hint.Servers[m.UUID]
			if !known || srv.IsExpelled {
				continue
			}
		}

		out = append(out, m.URI)
	}

	return out
}

// Bootstrap is the supplemental convergence loop spec.md §2 describes
// narratively ("a freshly started instance ... must locate a peer ... and
// converge") but never gives its own operation slot: it retries
// fetchFromMembership with the membership-change signal as backoff until it
// gets a document or ctx is cancelled, then runs the local applier on it.
// A KindConfigFetch error is logged and retried the same way; any other
// error (e.g. a failed local-disk fallback) is returned. A warm restart (config.yml already on disk) never needs this; New already
// loads that file directly.
func (a *Applier) Bootstrap(ctx context.Context, hint *topology.Topology) error {
	a.mu.RLock()
	alreadyBootstrapped := a.activeConf != nil
	a.mu.RUnlock()

	if alreadyBootstrapped {
		return nil
	}

	changed, unsubscribe := a.cfg.Membership.Subscribe()
	defer unsubscribe()

	for {
		doc, err := a.fetchFromMembership(ctx, hint)
		if err != nil {
			var cerr *config.Error
			if !errors.As(err, &cerr) || cerr.Kind != config.KindConfigFetch {
				return err
			}

			a.cfg.Loggerf.Warnf(ctx, "bootstrap: %v", err)
		} else if doc != nil {
			return a.Apply(ctx, doc)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

