// Package viper loads an instance's bootstrap settings — its work
// directory, its own server UUID, and a list of seed peer URIs — from any
// source
// github.com/spf13/viper supports (file, env, flags). It wraps a
// *viper.Viper and unmarshals it into a typed struct, the same shape the
// teacher's viper provider uses to load a vshard-router topology.
package viper

import (
	"fmt"

	"github.com/google/uuid"
	srcviper "github.com/spf13/viper"

	"github.com/R-omk/cartridge/applier"
)

// Settings is the typed shape Provider unmarshals a viper instance into.
type Settings struct {
	WorkDir  string   `mapstructure:"work_dir"`
	MyUUID   string   `mapstructure:"my_uuid"`
	SeedURIs []string `mapstructure:"seed_uris"`
}

// Provider wraps a *viper.Viper, already-decoded into Settings.
type Provider struct {
	v        *srcviper.Viper
	settings Settings
}

// NewProvider decodes v into Settings immediately, panicking on a decode
// error the same way the teacher's viper provider panics on Unmarshal
// failure — both treat a malformed config source as a startup-time bug.
func NewProvider(v *srcviper.Viper) *Provider {
	if v == nil {
		panic("viper entity is nil")
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		panic(err)
	}

	return &Provider{v: v, settings: settings}
}

// Validate checks that the decoded settings are usable: a non-empty
// work_dir and a well-formed my_uuid.
func (p *Provider) Validate() error {
	if p.settings.WorkDir == "" {
		return fmt.Errorf("work_dir is empty")
	}

	if p.settings.MyUUID == "" {
		return fmt.Errorf("my_uuid is empty")
	}

	if _, err := uuid.Parse(p.settings.MyUUID); err != nil {
		return fmt.Errorf("my_uuid: %w", err)
	}

	return nil
}

// ApplyTo fills in cfg's WorkDir and MyUUID from the loaded settings,
// leaving every collaborator field (Membership, Transport, Roles, ...) for
// the caller to wire in directly — viper only ever owns the scalar
// bootstrap settings, never the live collaborators.
func (p *Provider) ApplyTo(cfg applier.Config) (applier.Config, error) {
	if err := p.Validate(); err != nil {
		return cfg, err
	}

	id, err := uuid.Parse(p.settings.MyUUID)
	if err != nil {
		return cfg, err
	}

	cfg.WorkDir = p.settings.WorkDir
	cfg.MyUUID = id

	return cfg, nil
}

// SeedURIs returns the decoded seed_uris list. Nothing in the applier
// package reads it: Bootstrap finds peers through Membership only.
func (p *Provider) SeedURIs() []string {
	return p.settings.SeedURIs
}
