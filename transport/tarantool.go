package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/tarantool/go-tarantool/v2"
	"golang.org/x/sync/errgroup"
)

// TarantoolPool is the reference Pool implementation: one tarantool.Connection
// per peer URI, dialed lazily and cached, mirroring the teacher's
// one-pool.Pooler-per-replicaset shape but at single-instance granularity
// (each applier peer is addressed directly, not through a replicaset pool).
type TarantoolPool struct {
	dialOpts tarantool.Opts
	user     string
	password string

	mu    sync.Mutex
	conns map[string]*tarantoolConn
}

// NewTarantoolPool returns a Pool that dials peers with the given
// credentials and connection options.
func NewTarantoolPool(user, password string, opts tarantool.Opts) *TarantoolPool {
	return &TarantoolPool{
		dialOpts: opts,
		user:     user,
		password: password,
		conns:    make(map[string]*tarantoolConn),
	}
}

// Get returns the cached connection for uri, dialing one if this is the
// first call for that URI.
func (p *TarantoolPool) Get(ctx context.Context, uri string) (Conn, error) {
	p.mu.Lock()
	if c, ok := p.conns[uri]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	dialer := tarantool.NetDialer{
		Address:  uri,
		User:     p.user,
		Password: p.password,
	}

	raw, err := tarantool.Connect(ctx, dialer, p.dialOpts)
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", uri, err)
	}

	c := &tarantoolConn{uri: uri, raw: raw}

	p.mu.Lock()
	p.conns[uri] = c
	p.mu.Unlock()

	return c, nil
}

// CloseAll closes every cached connection concurrently via errgroup, the
// same fan-out/fan-in shape the teacher uses in DiscoveryAllBuckets, and
// returns the first error encountered (if any); every connection is still
// given a chance to close regardless of earlier failures.
func (p *TarantoolPool) CloseAll(ctx context.Context) error {
	p.mu.Lock()
	conns := make([]*tarantoolConn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.conns = make(map[string]*tarantoolConn)
	p.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, c := range conns {
		c := c
		g.Go(func() error {
			return c.Close()
		})
	}

	return g.Wait()
}

// tarantoolConn adapts a *tarantool.Connection to Conn, decoding the
// endpoint's reply tuple positionally into Response.Data.
type tarantoolConn struct {
	uri string
	raw *tarantool.Connection
}

func (c *tarantoolConn) Call(ctx context.Context, endpoint string, args []any) (Response, error) {
	req := tarantool.NewCallRequest(endpoint).Context(ctx).Args(args)

	if isTwoPCEndpoint(endpoint) {
		var result twoPCResult
		if err := c.raw.Do(req).GetTyped(&result); err != nil {
			return Response{}, fmt.Errorf("transport: calling %s on %s: %w", endpoint, c.uri, err)
		}

		return Response{Data: []any{result.OK, result.Message}}, nil
	}

	var data []any
	if err := c.raw.Do(req).GetTyped(&data); err != nil {
		return Response{}, fmt.Errorf("transport: calling %s on %s: %w", endpoint, c.uri, err)
	}

	return Response{Data: data}, nil
}

// isTwoPCEndpoint reports whether endpoint's reply follows the (ok,
// err_message) tuple shape twoPCResult decodes, so Call can route it through
// the CustomDecoder the same way the teacher's rs.conn.Do(...).GetTyped
// pattern decodes vshardStorageCallResponseProto instead of positional
// []any indexing.
func isTwoPCEndpoint(endpoint string) bool {
	switch endpoint {
	case EndpointPrepare2PC, EndpointCommit2PC, EndpointAbort2PC:
		return true
	default:
		return false
	}
}

func (c *tarantoolConn) Close() error {
	return c.raw.Close()
}
