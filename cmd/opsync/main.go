package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"opsync/internal"
	"opsync/internal/config"
	"opsync/internal/pipeline"
	"opsync/internal/scheduler"
	"opsync/internal/storage"
	"opsync/internal/vendorcfg"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	runner, err := pipeline.NewRunner(db, &cfg)
	must(err)

	cmd := os.Args[1]
	switch cmd {
	case "erp:sync":
		tmpl, _ := parseTemplateFlag(cmd)
		res, err := runner.SyncERP(context.Background(), tmpl)
		must(err)
		fmt.Printf("erp sync done vendor=%d fetched=%d sales_orders=%d purchase_orders=%d skipped=%d\n",
			tmpl.VendorID, res.Fetched, res.SalesOrders, res.PurchaseOrders, res.Skipped)
	case "vendor:fetch":
		tmpl, rules := parseTemplateFlag(cmd)
		res, err := runner.FetchVendor(context.Background(), tmpl, rules)
		must(err)
		printWarnings(res.Warnings)
		path, err := runner.SaveArtifact("manual", internal.StageFetch, res.Bodies)
		must(err)
		fmt.Printf("vendor fetch done vendor=%d bodies=%d errors=%d artifact=%s\n",
			tmpl.VendorID, len(res.Bodies), len(res.Errors), path)
	case "extract":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		templatePath := fs.String("template", "", "vendor template json")
		artifactPath := fs.String("artifact", "", "fetch artifact to transform")
		_ = fs.Parse(os.Args[2:])
		tmpl, rules := loadTemplate(*templatePath)
		bodies, err := runner.LoadArtifact(requireValue("--artifact", *artifactPath))
		must(err)
		records, warns := runner.Extract(context.Background(), tmpl, rules, bodies)
		printWarnings(warns)
		path, err := runner.SaveArtifact("manual", internal.StageExtract, records)
		must(err)
		fmt.Printf("extract done vendor=%d records=%d artifact=%s\n", tmpl.VendorID, len(records), path)
	case "dispatch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		templatePath := fs.String("template", "", "vendor template json")
		artifactPath := fs.String("artifact", "", "extract artifact to store")
		_ = fs.Parse(os.Args[2:])
		tmpl, _ := loadTemplate(*templatePath)
		records, err := runner.LoadArtifact(requireValue("--artifact", *artifactPath))
		must(err)
		res, warns := runner.Dispatch(tmpl, records)
		printWarnings(warns)
		fmt.Printf("dispatch done vendor=%d stored=%d skipped=%d unmatched=%d\n",
			tmpl.VendorID, res.Stored, res.Skipped, res.Unmatched)
	case "run":
		tmpl, rules := parseTemplateFlag(cmd)
		summary, err := runner.RunVendor(context.Background(), tmpl, rules)
		must(err)
		printWarnings(summary.Warnings)
		fmt.Printf("run done vendor=%d trace=%s fetched=%d extracted=%d stored=%d skipped=%d\n",
			summary.VendorID, summary.TraceID, summary.Fetched, summary.Extracted, summary.Stored, summary.Skipped)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		vendorID := fs.Int("vendorId", 0, "vendor id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *vendorID == 0 || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--vendorId and --out are required"))
		}
		rows, err := runner.Export(*vendorID, *out)
		must(err)
		if rows == 0 {
			must(fmt.Errorf("no export rows for vendorId=%d", *vendorID))
		}
		fmt.Printf("exported %d rows to %s\n", rows, *out)
	case "schedule":
		svc := scheduler.NewService(db, &cfg)
		must(svc.Run(context.Background()))
	default:
		usage()
		os.Exit(1)
	}
}

func parseTemplateFlag(cmd string) (*vendorcfg.Template, []vendorcfg.MappingRule) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	templatePath := fs.String("template", "", "vendor template json")
	_ = fs.Parse(os.Args[2:])
	return loadTemplate(*templatePath)
}

func loadTemplate(path string) (*vendorcfg.Template, []vendorcfg.MappingRule) {
	tmpl, rules, err := vendorcfg.Load(requireValue("--template", path))
	must(err)
	return tmpl, rules
}

func requireValue(name, value string) string {
	if strings.TrimSpace(value) == "" {
		must(fmt.Errorf("%s is required", name))
	}
	return value
}

func printWarnings(warns []error) {
	for _, warn := range warns {
		fmt.Printf("warning: %v\n", warn)
	}
}

func usage() {
	fmt.Println("usage: opsync <command>")
	fmt.Println("commands:")
	fmt.Println("  erp:sync --template=./configs/vendors/acme.json")
	fmt.Println("  vendor:fetch --template=./configs/vendors/acme.json")
	fmt.Println("  extract --template=... --artifact=./data/artifacts/..._fetch_...json")
	fmt.Println("  dispatch --template=... --artifact=./data/artifacts/..._extract_...json")
	fmt.Println("  run --template=./configs/vendors/acme.json")
	fmt.Println("  export:xlsx --vendorId=7 --out=./out/vendor_7.xlsx")
	fmt.Println("  schedule")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
