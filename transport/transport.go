// Package transport defines the peer RPC contract the applier depends on
// (spec.md "Out of scope: the connection pool that returns RPC channels to
// peer URIs"), plus a tarantool-backed reference implementation and an
// in-process test double. Every applier component that needs to reach a
// peer goes through Pool/Conn rather than dialing directly, the same
// separation the teacher draws between Router and its pool.Pooler conn field.
package transport

import (
	"context"
	"fmt"
)

// Endpoint names are stable across the cluster: every instance exposes them
// so peers can invoke them by name (spec.md §4.F, §4.G).
const (
	EndpointLoadFromFile = "load_from_file"
	EndpointPrepare2PC   = "prepare_2pc"
	EndpointCommit2PC    = "commit_2pc"
	EndpointAbort2PC     = "abort_2pc"
	EndpointValidateConf = "validate_config"
	EndpointApplyConf    = "apply_config"
)

// ErrCallFailed reports a call the peer could not serve; applier.Dispatch
// returns it for an endpoint name it does not expose.
var ErrCallFailed = fmt.Errorf("transport: remote call failed")

// Response is the decoded result of a Conn.Call: an ordered tuple, mirroring
// the multi-return-value convention of the remote endpoints (e.g.
// prepare_2pc returns (ok bool, err string)).
type Response struct {
	Data []any
}

// Bool returns Data[i] as a bool, or false if out of range or not a bool.
func (r Response) Bool(i int) bool {
	if i < 0 || i >= len(r.Data) {
		return false
	}
	b, _ := r.Data[i].(bool)
	return b
}

// String returns Data[i] as a string, or "" if out of range or not a string.
func (r Response) String(i int) string {
	if i < 0 || i >= len(r.Data) {
		return ""
	}
	s, _ := r.Data[i].(string)
	return s
}

// Conn is one open channel to a single peer instance.
type Conn interface {
	Call(ctx context.Context, endpoint string, args []any) (Response, error)
	Close() error
}

// Pool hands out Conns by peer URI, and knows how to close all of them.
type Pool interface {
	Get(ctx context.Context, uri string) (Conn, error)
	// CloseAll closes every connection this Pool has opened (TarantoolPool
	// closes them concurrently, InProcess one after another).
	CloseAll(ctx context.Context) error
}
