// Package sources assembles the built-in adapter kinds.
package sources

import (
	"github.com/UCKETX/mcsm-templates/internal/adapter"
	"github.com/UCKETX/mcsm-templates/internal/adapter/forge"
	"github.com/UCKETX/mcsm-templates/internal/adapter/getbukkit"
	"github.com/UCKETX/mcsm-templates/internal/adapter/github"
	"github.com/UCKETX/mcsm-templates/internal/adapter/sponge"
	"github.com/UCKETX/mcsm-templates/internal/adapter/vanilla"
)

// Factories returns a fresh map of every built-in adapter kind.
func Factories() adapter.Factories {
	return adapter.Factories{
		github.Kind:    github.New,
		forge.Kind:     forge.New,
		vanilla.Kind:   vanilla.New,
		getbukkit.Kind: getbukkit.New,
		sponge.Kind:    sponge.New,
	}
}
