// Package pipeline wires the fetch, extract and dispatch stages into one
// per-vendor run, persisting stage artifacts and run accounting along the way.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opsync/internal"
	"opsync/internal/artifact"
	"opsync/internal/config"
	"opsync/internal/dispatch"
	"opsync/internal/extract"
	"opsync/internal/fetch"
	"opsync/internal/storage"
	"opsync/internal/vendorcfg"
)

type Runner struct {
	db    *storage.DB
	cfg   *config.Config
	store *artifact.Store
}

func NewRunner(db *storage.DB, cfg *config.Config) (*Runner, error) {
	store, err := artifact.NewStore(cfg.ArtifactDir)
	if err != nil {
		return nil, err
	}
	return &Runner{db: db, cfg: cfg, store: store}, nil
}

// Summary accounts for one full vendor run.
type Summary struct {
	TraceID   string
	VendorID  int
	Synced    fetch.SyncResult
	Fetched   int
	Extracted int
	Stored    int
	Skipped   int
	Warnings  []error
}

// SyncERP pulls the vendor's open orders from the ERP into local storage.
func (r *Runner) SyncERP(ctx context.Context, tmpl *vendorcfg.Template) (fetch.SyncResult, error) {
	erp, err := fetch.NewERPClient(r.cfg, r.db)
	if err != nil {
		return fetch.SyncResult{}, err
	}
	return erp.SyncOrders(ctx, tmpl)
}

// FetchVendor calls the vendor API for each open purchase order and returns
// the raw response trees.
func (r *Runner) FetchVendor(ctx context.Context, tmpl *vendorcfg.Template, rules []vendorcfg.MappingRule) (fetch.FetchResult, error) {
	orders, err := r.db.ListOpenPurchaseOrders(tmpl.VendorID, tmpl.PurchaseOrderStatus)
	if err != nil {
		return fetch.FetchResult{}, err
	}
	if max := r.cfg.SchedulerBatchMax; max > 0 && len(orders) > max {
		orders = orders[:max]
	}

	fetcher, err := fetch.NewVendorFetcher(ctx, r.cfg, tmpl, rules)
	if err != nil {
		return fetch.FetchResult{}, err
	}
	return fetcher.FetchOrders(ctx, orders), nil
}

// Extract transforms raw vendor bodies into canonical invoice records.
func (r *Runner) Extract(ctx context.Context, tmpl *vendorcfg.Template, rules []vendorcfg.MappingRule, bodies []map[string]any) ([]map[string]any, []error) {
	transformer := extract.NewTransformer(tmpl, rules)
	if tmpl.MultiAPICall != nil && tmpl.MultiAPICall.URL.Raw != "" {
		fetcher, err := fetch.NewVendorFetcher(ctx, r.cfg, tmpl, rules)
		if err != nil {
			return nil, []error{err}
		}
		transformer.SecondCall = fetcher.SecondCall(ctx)
	}
	return transformer.TransformBatch(bodies)
}

// Dispatch persists canonical records for the vendor.
func (r *Runner) Dispatch(tmpl *vendorcfg.Template, records []map[string]any) (dispatch.Result, []error) {
	return dispatch.NewDispatcher(r.db, tmpl.VendorID).Store(records)
}

// Export writes the vendor's reconciliation report.
func (r *Runner) Export(vendorID int, outputPath string) (int, error) {
	rows, err := r.db.ExportRows(vendorID)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return len(rows), dispatch.ExportRowsToXLSX(rows, outputPath)
}

// RunVendor executes the whole pipeline for one vendor template: ERP sync,
// vendor fetch, extraction and dispatch. Stage outputs land in the artifact
// store and a runs row records the counts and timings.
func (r *Runner) RunVendor(ctx context.Context, tmpl *vendorcfg.Template, rules []vendorcfg.MappingRule) (Summary, error) {
	summary := Summary{
		TraceID:  uuid.NewString(),
		VendorID: tmpl.VendorID,
	}
	timings := map[string]int64{}

	started := time.Now()
	synced, err := r.SyncERP(ctx, tmpl)
	if err != nil {
		return summary, fmt.Errorf("erp sync: %w", err)
	}
	summary.Synced = synced
	timings["erp_sync_ms"] = time.Since(started).Milliseconds()
	if err := r.db.SetMetadata(fmt.Sprintf("last_erp_sync_vendor_%d", tmpl.VendorID), time.Now().UTC().Format(time.RFC3339)); err != nil {
		summary.Warnings = append(summary.Warnings, err)
	}

	started = time.Now()
	fetched, err := r.FetchVendor(ctx, tmpl, rules)
	if err != nil {
		return summary, fmt.Errorf("vendor fetch: %w", err)
	}
	summary.Fetched = len(fetched.Bodies)
	summary.Warnings = append(summary.Warnings, fetched.Warnings...)
	timings["fetch_ms"] = time.Since(started).Milliseconds()
	if _, err := r.store.Save(summary.TraceID, internal.StageFetch, fetched.Bodies); err != nil {
		summary.Warnings = append(summary.Warnings, err)
	}

	started = time.Now()
	records, warns := r.Extract(ctx, tmpl, rules, fetched.Bodies)
	summary.Warnings = append(summary.Warnings, warns...)
	records = append(records, fetched.Errors...)
	summary.Extracted = len(records)
	timings["extract_ms"] = time.Since(started).Milliseconds()
	if _, err := r.store.Save(summary.TraceID, internal.StageExtract, records); err != nil {
		summary.Warnings = append(summary.Warnings, err)
	}

	started = time.Now()
	stored, warns := r.Dispatch(tmpl, records)
	summary.Warnings = append(summary.Warnings, warns...)
	summary.Stored = stored.Stored
	summary.Skipped = stored.Skipped + stored.Unmatched
	timings["dispatch_ms"] = time.Since(started).Milliseconds()

	counts := map[string]int{
		"erp_fetched":     synced.Fetched,
		"purchase_orders": synced.PurchaseOrders,
		"fetched":         summary.Fetched,
		"extracted":       summary.Extracted,
		"stored":          summary.Stored,
		"skipped":         summary.Skipped,
		"warnings":        len(summary.Warnings),
	}
	if err := r.db.RecordRun(summary.TraceID, tmpl.VendorID, "run", mustJSON(counts), mustJSON(timings)); err != nil {
		summary.Warnings = append(summary.Warnings, err)
	}

	return summary, nil
}

// LoadArtifact reads a saved stage payload back for replay.
func (r *Runner) LoadArtifact(path string) ([]map[string]any, error) {
	var payload []map[string]any
	if err := r.store.Load(path, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// SaveArtifact persists a stage payload and returns its path.
func (r *Runner) SaveArtifact(traceID, stage string, payload any) (string, error) {
	return r.store.Save(traceID, stage, payload)
}

func mustJSON(v any) string {
	blob, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(blob)
}
