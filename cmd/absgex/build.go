package main

import (
	"github.com/dgnsrekt/absgex/internal/archive"
	"github.com/dgnsrekt/absgex/internal/marketday"
	"github.com/dgnsrekt/absgex/internal/polygon"
	"github.com/dgnsrekt/absgex/internal/service"
)

// buildService wires the pipeline collaborators from loaded config.
func buildService() *service.Service {
	client := polygon.NewClient(
		cfg.Polygon.BaseURL,
		cfg.Polygon.APIKey,
		cfg.Polygon.RatePerSecond,
		cfg.Timeout(),
		logger,
	)

	resolver := marketday.NewResolver(cfg.Market.Timezone)

	var archiver service.Archiver
	if cfg.Archive.Enabled {
		archiver = archive.NewWriter(cfg.Archive.Directory, logger)
	}

	return service.New(client, resolver, archiver, cfg, logger)
}
