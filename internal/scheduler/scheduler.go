// Package scheduler runs the reconciliation pipeline for every configured
// vendor on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"opsync/internal/config"
	"opsync/internal/pipeline"
	"opsync/internal/storage"
	"opsync/internal/vendorcfg"
)

type Service struct {
	db  *storage.DB
	cfg *config.Config
}

func NewService(db *storage.DB, cfg *config.Config) *Service {
	return &Service{db: db, cfg: cfg}
}

func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.runCycle(ctx); err != nil {
			fmt.Printf("scheduler cycle error: %v\n", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(s.cfg.SchedulerIntervalSec) * time.Second):
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	templates, err := s.listTemplates()
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		fmt.Printf("scheduler cycle: no vendor templates in %s\n", s.cfg.VendorConfigDir)
		return nil
	}

	runner, err := pipeline.NewRunner(s.db, s.cfg)
	if err != nil {
		return err
	}

	for _, path := range templates {
		if ctx.Err() != nil {
			return nil
		}

		tmpl, rules, err := vendorcfg.Load(path)
		if err != nil {
			fmt.Printf("scheduler: skip %s: %v\n", filepath.Base(path), err)
			continue
		}

		summary, err := runner.RunVendor(ctx, tmpl, rules)
		if err != nil {
			fmt.Printf("scheduler: vendor %d failed: %v\n", tmpl.VendorID, err)
			continue
		}
		for _, warn := range summary.Warnings {
			fmt.Printf("scheduler: vendor %d warning: %v\n", tmpl.VendorID, warn)
		}
		fmt.Printf("scheduler: vendor %d trace=%s fetched=%d extracted=%d stored=%d skipped=%d\n",
			tmpl.VendorID, summary.TraceID, summary.Fetched, summary.Extracted, summary.Stored, summary.Skipped)

		if s.cfg.SchedulerAutoExport {
			outputPath := filepath.Join(s.cfg.OutputDir, fmt.Sprintf("vendor_%d.xlsx", tmpl.VendorID))
			if rows, err := runner.Export(tmpl.VendorID, outputPath); err != nil {
				fmt.Printf("scheduler: vendor %d export failed: %v\n", tmpl.VendorID, err)
			} else if rows > 0 {
				fmt.Printf("scheduler: vendor %d exported %d rows to %s\n", tmpl.VendorID, rows, outputPath)
			}
		}
	}

	return nil
}

func (s *Service) listTemplates() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.VendorConfigDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(s.cfg.VendorConfigDir, entry.Name()))
	}
	return paths, nil
}
