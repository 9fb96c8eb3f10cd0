package commands

import (
	"context"

	"git.home.luguber.info/inful/repobuilder/internal/detect"
	"git.home.luguber.info/inful/repobuilder/internal/ecosystem"
	"git.home.luguber.info/inful/repobuilder/internal/report"
)

// DetectCmd implements the 'detect' command.
type DetectCmd struct {
	Path string `arg:"" type:"existingdir" help:"Directory to scan"`
	JSON bool   `name:"json" help:"Write descriptors as JSON"`
}

func (d *DetectCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	detector := detect.New(ecosystem.DefaultRegistry(),
		detect.WithMaxDepth(cfg.Build.MaxDetectDepth),
		detect.WithLogger(g.Logger))
	descs, err := detector.Detect(context.Background(), d.Path)
	if err != nil {
		return err
	}
	if d.JSON {
		if descs == nil {
			descs = []ecosystem.BuildDescriptor{}
		}
		return report.JSON(g.Stdout, descs)
	}
	return report.RenderDescriptors(g.Stdout, descs)
}
