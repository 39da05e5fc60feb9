// Package presets holds the named parameter sets offered by the service
package presets

import (
	"context"
	"fmt"
	"sort"

	"github.com/linuxmatters/echopedal/internal/failure"
	"github.com/linuxmatters/echopedal/internal/pots"
	"github.com/linuxmatters/echopedal/internal/service"
	"github.com/sirupsen/logrus"
)

// Source fetches the preset definitions
type Source interface {
	Presets(ctx context.Context) (map[string]service.Preset, error)
}

// Preset is an immutable named parameter set
type Preset struct {
	Key         string
	Name        string
	Description string
	Controls    pots.Controls
}

// Label is the text shown in the preset selector
func (p Preset) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Key
}

// Catalog is loaded once and read-only afterwards
type Catalog struct {
	byKey map[string]Preset
	keys  []string
}

// Load fetches presets from src. Any failure leaves the catalog empty and is
// logged; the returned error is classified PresetLoadFailed for callers that
// want to record it, never for display.
func Load(ctx context.Context, src Source) (*Catalog, error) {
	c := &Catalog{byKey: make(map[string]Preset)}

	raw, err := src.Presets(ctx)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Load",
			"error":    err.Error(),
		}).Warn("Failed to load presets")
		return c, failure.New(failure.PresetLoadFailed, "", err)
	}

	for key, def := range raw {
		p, err := fromDefinition(key, def)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Load",
				"preset":   key,
				"error":    err.Error(),
			}).Warn("Skipping incomplete preset")
			continue
		}
		c.byKey[key] = p
		c.keys = append(c.keys, key)
	}
	sort.Strings(c.keys)

	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"count":    len(c.keys),
	}).Info("Presets loaded")

	return c, nil
}

// New builds a catalog from already validated presets
func New(list ...Preset) *Catalog {
	c := &Catalog{byKey: make(map[string]Preset)}
	for _, p := range list {
		if _, dup := c.byKey[p.Key]; !dup {
			c.keys = append(c.keys, p.Key)
		}
		c.byKey[p.Key] = p
	}
	sort.Strings(c.keys)
	return c
}

func fromDefinition(key string, def service.Preset) (Preset, error) {
	vals := []*float64{def.Pot1, def.Pot2, def.Pot3, def.Pot4}
	var ctl pots.Controls
	for i, v := range vals {
		if v == nil {
			return Preset{}, fmt.Errorf("pot%d missing", i+1)
		}
		if *v < 0 || *v > 1 {
			return Preset{}, fmt.Errorf("pot%d value %g outside 0-1", i+1, *v)
		}
		ctl = ctl.With(pots.Kinds[i], pots.FromUnits(*v))
	}
	return Preset{
		Key:         key,
		Name:        def.Name,
		Description: def.Description,
		Controls:    ctl,
	}, nil
}

// Get looks up a preset by key
func (c *Catalog) Get(key string) (Preset, bool) {
	if c == nil {
		return Preset{}, false
	}
	p, ok := c.byKey[key]
	return p, ok
}

// Keys returns preset keys in stable order
func (c *Catalog) Keys() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.keys...)
}

// Len reports the number of presets
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}
