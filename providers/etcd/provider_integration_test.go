//go:build integration
// +build integration

package etcd

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/etcd/client/v2"
)

func ExampleProvider_SeedURIs() {
	provider, err := NewProvider(Config{
		EtcdConfig: client.Config{
			Endpoints: []string{"http://127.0.0.1:2379"},
			Transport: client.DefaultTransport,
			// set timeout per request to fail fast when the target endpoint is unavailable
			HeaderTimeoutPerRequest: time.Second,
		},
		Path: "/cartridge/cluster/instances",
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	uris, err := provider.SeedURIs(context.Background())
	fmt.Println(uris, err)
}
