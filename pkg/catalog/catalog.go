// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

// Package catalog loads the embedded BSI Grundschutz control catalog
// extract and answers the lookups the pipeline needs: controls per
// baustein, the set of Level-1 MUSS requirements, and the known
// baustein IDs.
package catalog

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"github.com/NTTDATA-DACH/NTT-DATA-Audit-Automator/pkg/assets"
)

// Control is one requirement of a baustein.
type Control struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Level int    `json:"level"`
	Kind  string `json:"kind"`
}

// Catalog indexes the embedded catalog by baustein ID.
type Catalog struct {
	bausteine map[string][]Control
	titles    map[string]string
}

type rawCatalog struct {
	Catalog struct {
		Groups []rawLayer `json:"groups"`
	} `json:"catalog"`
}

type rawLayer struct {
	ID     string        `json:"id"`
	Groups []rawBaustein `json:"groups"`
}

type rawBaustein struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Controls []Control `json:"controls"`
}

// Load parses the embedded catalog asset.
func Load() (*Catalog, error) {
	var raw rawCatalog
	if err := json.Unmarshal(assets.ControlCatalog(), &raw); err != nil {
		return nil, errors.Wrap(err, "parsing control catalog")
	}
	c := &Catalog{
		bausteine: make(map[string][]Control),
		titles:    make(map[string]string),
	}
	for _, layer := range raw.Catalog.Groups {
		for _, b := range layer.Groups {
			if b.ID == "" {
				continue
			}
			c.bausteine[b.ID] = b.Controls
			c.titles[b.ID] = b.Title
		}
	}
	if len(c.bausteine) == 0 {
		return nil, errors.New("control catalog contains no bausteine")
	}
	return c, nil
}

// ControlsForBaustein returns all controls of a baustein, or nil when
// the baustein is unknown.
func (c *Catalog) ControlsForBaustein(bausteinID string) []Control {
	return c.bausteine[bausteinID]
}

// BausteinTitle returns the display title for a baustein ID.
func (c *Catalog) BausteinTitle(bausteinID string) string {
	return c.titles[bausteinID]
}

// KnownBausteinIDs returns every baustein ID in the catalog, sorted.
func (c *Catalog) KnownBausteinIDs() []string {
	ids := make([]string, 0, len(c.bausteine))
	for id := range c.bausteine {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Level1MussIDs returns the set of control IDs that are Level-1 MUSS
// requirements (Basis-Absicherung).
func (c *Catalog) Level1MussIDs() map[string]bool {
	out := make(map[string]bool)
	for _, controls := range c.bausteine {
		for _, ctrl := range controls {
			if ctrl.Level == 1 && ctrl.Kind == "MUSS" {
				out[ctrl.ID] = true
			}
		}
	}
	return out
}
