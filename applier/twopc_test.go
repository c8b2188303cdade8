package applier_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/R-omk/cartridge/applier"
	"github.com/R-omk/cartridge/config"
	"github.com/R-omk/cartridge/membership"
	"github.com/R-omk/cartridge/transport"
)

// twopcFixture wires N Appliers together over one shared transport.InProcess
// pool, each registered under its own URI with its own Dispatch as the
// handler, so PatchClusterwide's prepare/commit/abort RPCs actually run
// end-to-end in one process the way spec.md §8's S1-S4 scenarios describe.
type twopcFixture struct {
	t    *testing.T
	pool *transport.InProcess
}

func newTwopcFixture(t *testing.T) *twopcFixture {
	t.Helper()
	return &twopcFixture{t: t, pool: transport.NewInProcess()}
}

// addParticipant seeds workDir/config.yml with doc, boots an Applier over it
// (a warm restart, per applier.New), and registers it on the shared pool
// under uri.
func (f *twopcFixture) addParticipant(myUUID uuid.UUID, uri string, mem membership.Membership, doc config.Document) *applier.Applier {
	f.t.Helper()

	dir := f.t.TempDir()
	writeSeed(f.t, dir, doc)

	a, err := applier.New(context.Background(), applier.Config{
		WorkDir:    dir,
		MyUUID:     myUUID,
		Membership: mem,
		Transport:  f.pool,
	})
	require.NoError(f.t, err)

	f.pool.Register(uri, a.Dispatch)

	return a
}

// baseTopology builds a topology section with one replicaset {b1, b2} plus
// a standalone router a, an expelled server c1, and a disabled server d1
// (spec.md §8 S3 "Expelled ignored" plus invariant 7).
func baseTopology(aID, b1ID, b2ID, c1ID, d1ID, rsID uuid.UUID, weight float64) map[string]any {
	return map[string]any{
		"servers": map[string]any{
			aID.String():  map[string]any{"uri": "inproc://a"},
			b1ID.String(): map[string]any{"uri": "inproc://b1"},
			b2ID.String(): map[string]any{"uri": "inproc://b2"},
			c1ID.String(): "expelled",
			d1ID.String(): map[string]any{"uri": "inproc://d1", "disabled": true},
		},
		"replicasets": map[string]any{
			rsID.String(): map[string]any{
				"roles":  []any{"vshard-storage"},
				"master": []any{b1ID.String(), b2ID.String()},
				"weight": weight,
			},
		},
		"failover": false,
	}
}

func baseDoc(topo map[string]any) config.Document {
	return config.Document{
		"topology": topo,
		"vshard":   map[string]any{"bucket_count": 3000, "bootstrapped": false},
	}
}

func staticMembershipFor(self uuid.UUID, uris map[uuid.UUID]string) membership.Membership {
	members := make(map[uuid.UUID]membership.Member, len(uris))
	for id, uri := range uris {
		members[id] = membership.Member{URI: uri, Alive: true}
	}

	return membership.NewStatic(self, members)
}

func TestPatchClusterwide_PropagatesToAllParticipantsAndExcludesExpelledDisabled(t *testing.T) {
	f := newTwopcFixture(t)

	aID, b1ID, b2ID, c1ID, d1ID, rsID := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	uris := map[uuid.UUID]string{aID: "inproc://a", b1ID: "inproc://b1", b2ID: "inproc://b2"}

	seed := baseDoc(baseTopology(aID, b1ID, b2ID, c1ID, d1ID, rsID, 1.5))

	a := f.addParticipant(aID, "inproc://a", staticMembershipFor(aID, uris), seed)
	b1 := f.addParticipant(b1ID, "inproc://b1", staticMembershipFor(b1ID, uris), seed)
	b2 := f.addParticipant(b2ID, "inproc://b2", staticMembershipFor(b2ID, uris), seed)

	var expelledContacted, disabledContacted bool
	f.pool.Register("inproc://c1", func(ctx context.Context, endpoint string, args []any) (transport.Response, error) {
		expelledContacted = true
		return transport.Response{Data: []any{true}}, nil
	})
	f.pool.Register("inproc://d1", func(ctx context.Context, endpoint string, args []any) (transport.Response, error) {
		disabledContacted = true
		return transport.Response{Data: []any{true}}, nil
	})

	patch := config.Patch{
		"topology": {Op: config.OpSet, Value: baseTopology(aID, b1ID, b2ID, c1ID, d1ID, rsID, 2.5)},
	}

	require.NoError(t, a.PatchClusterwide(context.Background(), patch))

	require.False(t, expelledContacted, "an expelled server must never be contacted during prepare or commit")
	require.False(t, disabledContacted, "a disabled server must never be contacted during prepare or commit")

	for _, p := range []*applier.Applier{a, b1, b2} {
		topo := p.GetDeepcopy("topology").(map[string]any)
		rs := topo["replicasets"].(map[string]any)[rsID.String()].(map[string]any)
		require.InDelta(t, 2.5, rs["weight"], 0.0001)

		servers := topo["servers"].(map[string]any)
		require.Equal(t, "expelled", servers[c1ID.String()])
	}
}

func TestPatchClusterwide_PrepareFailureAbortsEverywhereAndLeavesNoPrepareFile(t *testing.T) {
	f := newTwopcFixture(t)

	aID, b1ID, b2ID, c1ID, d1ID, rsID := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	uris := map[uuid.UUID]string{aID: "inproc://a", b1ID: "inproc://b1", b2ID: "inproc://b2"}

	seed := baseDoc(baseTopology(aID, b1ID, b2ID, c1ID, d1ID, rsID, 1.5))

	aDir := t.TempDir()
	b1Dir := t.TempDir()

	writeSeed(t, aDir, seed)
	writeSeed(t, b1Dir, seed)

	a, err := applier.New(context.Background(), applier.Config{
		WorkDir: aDir, MyUUID: aID, Membership: staticMembershipFor(aID, uris), Transport: f.pool,
	})
	require.NoError(t, err)
	f.pool.Register("inproc://a", a.Dispatch)

	b1, err := applier.New(context.Background(), applier.Config{
		WorkDir: b1Dir, MyUUID: b1ID, Membership: staticMembershipFor(b1ID, uris), Transport: f.pool,
	})
	require.NoError(t, err)
	f.pool.Register("inproc://b1", b1.Dispatch)

	// b2 is never registered: unreachable during prepare, per S4.

	patch := config.Patch{
		"topology": {Op: config.OpSet, Value: baseTopology(aID, b1ID, b2ID, c1ID, d1ID, rsID, 2.5)},
	}

	err = a.PatchClusterwide(context.Background(), patch)
	require.Error(t, err)

	require.NoFileExists(t, filepath.Join(aDir, "config.prepare.yml"))
	require.NoFileExists(t, filepath.Join(b1Dir, "config.prepare.yml"))

	for _, p := range []*applier.Applier{a, b1} {
		topo := p.GetDeepcopy("topology").(map[string]any)
		rs := topo["replicasets"].(map[string]any)[rsID.String()].(map[string]any)
		require.InDelta(t, 1.5, rs["weight"], 0.0001, "active config must be unchanged after a failed prepare phase")
	}
}

func TestPatchClusterwide_ConcurrentCallsOnSameInstanceOneWins(t *testing.T) {
	f := newTwopcFixture(t)

	aID, b1ID, b2ID, c1ID, d1ID, rsID := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()
	uris := map[uuid.UUID]string{aID: "inproc://a", b1ID: "inproc://b1", b2ID: "inproc://b2"}

	seed := baseDoc(baseTopology(aID, b1ID, b2ID, c1ID, d1ID, rsID, 1.5))

	a := f.addParticipant(aID, "inproc://a", staticMembershipFor(aID, uris), seed)
	b1 := f.addParticipant(b1ID, "inproc://b1", staticMembershipFor(b1ID, uris), seed)
	_ = f.addParticipant(b2ID, "inproc://b2", staticMembershipFor(b2ID, uris), seed)

	started := make(chan struct{})
	release := make(chan struct{})

	realDispatch := b1.Dispatch
	f.pool.Register("inproc://b1", func(ctx context.Context, endpoint string, args []any) (transport.Response, error) {
		if endpoint == transport.EndpointPrepare2PC {
			close(started)
			<-release
		}

		return realDispatch(ctx, endpoint, args)
	})

	patch := config.Patch{
		"topology": {Op: config.OpSet, Value: baseTopology(aID, b1ID, b2ID, c1ID, d1ID, rsID, 2.5)},
	}

	done := make(chan error, 1)

	go func() {
		done <- a.PatchClusterwide(context.Background(), patch)
	}()

	<-started

	err := a.PatchClusterwide(context.Background(), patch)
	require.Error(t, err)

	var cerr *config.Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, config.KindAtomic, cerr.Kind)

	close(release)
	require.NoError(t, <-done)
}

func writeSeed(t *testing.T, dir string, doc config.Document) {
	t.Helper()

	raw, err := yaml.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), raw, 0o644))
}
