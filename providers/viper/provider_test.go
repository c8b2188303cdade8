package viper_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/R-omk/cartridge/applier"
	vprovider "github.com/R-omk/cartridge/providers/viper"
)

func TestNewProvider_NilPanics(t *testing.T) {
	require.Panics(t, func() {
		vprovider.NewProvider(nil)
	})
}

func TestProvider_ApplyTo_FillsWorkDirAndUUID(t *testing.T) {
	id := "2eb70229-de3f-40c5-80dd-93cad970d52d"

	v := viper.New()
	v.Set("work_dir", "/var/lib/cartridge")
	v.Set("my_uuid", id)
	v.Set("seed_uris", []string{"tcp://router:3301", "tcp://storage-1:3301"})

	provider := vprovider.NewProvider(v)
	require.NoError(t, provider.Validate())

	cfg, err := provider.ApplyTo(applier.Config{})
	require.NoError(t, err)
	require.Equal(t, "/var/lib/cartridge", cfg.WorkDir)
	require.Equal(t, id, cfg.MyUUID.String())
	require.Equal(t, []string{"tcp://router:3301", "tcp://storage-1:3301"}, provider.SeedURIs())
}

func TestProvider_Validate_RejectsMissingFields(t *testing.T) {
	v := viper.New()
	provider := vprovider.NewProvider(v)

	require.Error(t, provider.Validate())
}

func TestProvider_Validate_RejectsMalformedUUID(t *testing.T) {
	v := viper.New()
	v.Set("work_dir", "/var/lib/cartridge")
	v.Set("my_uuid", "not-a-uuid")

	provider := vprovider.NewProvider(v)

	require.Error(t, provider.Validate())
}
