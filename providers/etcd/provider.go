// Package etcd discovers the seed peer URIs for a fresh instance's
// bootstrap convergence round from an etcd v2 key tree, the same
// "Get(path, Recursive) and walk the nodes" pattern the teacher's etcd
// provider uses to build a vshard-router topology, retargeted at a flat
// list of URIs instead of a replicaset/instance map.
package etcd

import (
	"context"
	"fmt"
	"path/filepath"

	"go.etcd.io/etcd/client/v2"
)

// ErrNoURIs is returned when path has no descendant "uri" leaf at all.
var ErrNoURIs = fmt.Errorf("etcd: no seed uris found under path")

// Config configures a Provider: the etcd client config and the path under
// which every instance publishes a {uri: "..."} leaf (e.g.
// /cartridge/cluster/instances/<name>/uri).
type Config struct {
	EtcdConfig client.Config
	Path       string
}

// Provider wraps an etcd v2 keys API scoped to Config.Path.
type Provider struct {
	kapi client.KeysAPI
	path string
}

// NewProvider dials etcd and returns a Provider bound to cfg.Path.
func NewProvider(cfg Config) (*Provider, error) {
	c, err := client.New(cfg.EtcdConfig)
	if err != nil {
		return nil, err
	}

	return &Provider{kapi: client.NewKeysAPI(c), path: cfg.Path}, nil
}

// SeedURIs recursively walks Path and collects the value of every leaf node
// named "uri". Nothing in the applier package reads this list: Bootstrap
// and fetchFromMembership find peers through Membership only.
func (p *Provider) SeedURIs(ctx context.Context) ([]string, error) {
	resp, err := p.kapi.Get(ctx, p.path, &client.GetOptions{Recursive: true})
	if err != nil {
		return nil, err
	}

	var uris []string
	collectURIs(resp.Node, &uris)

	if len(uris) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoURIs, p.path)
	}

	return uris, nil
}

func collectURIs(node *client.Node, out *[]string) {
	if node == nil {
		return
	}

	if !node.Dir && filepath.Base(node.Key) == "uri" {
		*out = append(*out, node.Value)
		return
	}

	for _, child := range node.Nodes {
		collectURIs(child, out)
	}
}

// Watch blocks on etcd changes under Path and invokes onChange with the
// refreshed SeedURIs result every time the subtree changes, until ctx is
// cancelled or onChange returns false.
func (p *Provider) Watch(ctx context.Context, onChange func([]string) bool) {
	w := p.kapi.Watcher(p.path, &client.WatcherOptions{Recursive: true})

	for {
		if _, err := w.Next(ctx); err != nil {
			return
		}

		uris, err := p.SeedURIs(ctx)
		if err != nil {
			continue
		}

		if !onChange(uris) {
			return
		}
	}
}
