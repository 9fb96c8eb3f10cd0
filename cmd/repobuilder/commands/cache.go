package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/repobuilder/internal/cache"
	"git.home.luguber.info/inful/repobuilder/internal/report"
)

// CacheCmd groups cache maintenance commands.
type CacheCmd struct {
	Clear CacheClearCmd `cmd:"" help:"Remove every cached result"`
	Evict CacheEvictCmd `cmd:"" help:"Remove expired entries and enforce the size limit"`
	Stats CacheStatsCmd `cmd:"" help:"Show cache usage"`
}

type CacheClearCmd struct{}

func (CacheClearCmd) Run(g *Global, root *CLI) error {
	m, err := openCache(g, root)
	if err != nil {
		return err
	}
	if err := m.Clear(context.Background()); err != nil {
		return err
	}
	_, err = fmt.Fprintf(g.Stdout, "Cache cleared: %s\n", m.Stats().Dir)
	return err
}

type CacheEvictCmd struct{}

func (CacheEvictCmd) Run(g *Global, root *CLI) error {
	m, err := openCache(g, root)
	if err != nil {
		return err
	}
	n, err := m.Evict(context.Background())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(g.Stdout, "Evicted %d entries\n", n)
	return err
}

type CacheStatsCmd struct {
	JSON bool `name:"json" help:"Write statistics as JSON"`
}

func (c CacheStatsCmd) Run(g *Global, root *CLI) error {
	m, err := openCache(g, root)
	if err != nil {
		return err
	}
	if c.JSON {
		return report.JSON(g.Stdout, m.Stats())
	}
	return report.RenderStats(g.Stdout, m.Stats())
}

func openCache(g *Global, root *CLI) (*cache.Manager, error) {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return nil, err
	}
	return cache.New(cfg.Cache, cache.WithLogger(g.Logger))
}
