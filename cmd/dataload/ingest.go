package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/subsurface-tools/dataload/pkg/ingest"
)

func cmdIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	dir := fs.String("dir", "", "directory of manifest files to submit")
	sequence := fs.String("sequence", "", "ingestion-sequence JSON file (ordered reference data)")
	batch := fs.Int("batch", 1, "records per workflow request")
	wpc := fs.Bool("work-products", false, "wrap manifests for work-product ingestion")
	locationMap := fs.String("file-location-map", "", "dataset location map from a previous upload")
	standardRef := fs.Bool("standard-reference", false, "inject the data partition into {{NAMESPACE}} placeholders")
	group := fs.String("group", "ingestion", "journal group name for this submission")
	fs.Parse(args)

	logger := newLogger()
	if *dir == "" {
		logger.Error("--dir is required")
		os.Exit(1)
	}
	cfg := loadConfig(*cfgPath, logger)
	client := newClient(cfg, logger)
	journal := openJournal(cfg, logger)
	defer journal.Close()

	ctx := context.Background()
	if err := client.VerifyLegalTag(ctx); err != nil {
		logger.Error("legal tag check failed", "error", err)
		os.Exit(1)
	}

	var locations map[string]ingest.FileLocation
	if *locationMap != "" {
		var err error
		locations, err = ingest.LoadLocations(*locationMap)
		if err != nil {
			logger.Error("load location map", "error", err)
			os.Exit(1)
		}
	}

	in := &ingest.Ingestor{
		Client:          client,
		Journal:         journal,
		BatchSize:       *batch,
		Group:           *group,
		InjectNamespace: *standardRef,
		Locations:       locations,
		AsWorkProduct:   *wpc,
	}

	var err error
	if *sequence != "" {
		err = in.IngestSequence(ctx, *dir, *sequence)
	} else {
		err = in.IngestDirectory(ctx, *dir)
	}
	if err != nil {
		logger.Error("ingestion failed", "error", err)
		os.Exit(1)
	}
}

func cmdUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	dir := fs.String("dir", "", "directory of dataset files to upload")
	output := fs.String("output", "datasets-location.json", "file to write the dataset location map to")
	workers := fs.Int("workers", 0, "concurrent uploads (default 2x CPU count)")
	fs.Parse(args)

	logger := newLogger()
	if *dir == "" {
		logger.Error("--dir is required")
		os.Exit(1)
	}
	cfg := loadConfig(*cfgPath, logger)
	client := newClient(cfg, logger)

	up := &ingest.Uploader{Client: client, Workers: *workers}
	locations, failed, err := up.UploadDirectory(context.Background(), *dir)
	if err != nil {
		logger.Error("upload failed", "error", err)
		os.Exit(1)
	}
	if err := ingest.SaveLocations(*output, locations); err != nil {
		logger.Error("write location map", "error", err)
		os.Exit(1)
	}
	logger.Info("location map saved", "path", *output, "uploaded", len(locations), "failed", len(failed))
	if len(failed) > 0 {
		for _, f := range failed {
			logger.Warn("upload failed", "path", f)
		}
		os.Exit(1)
	}
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	wait := fs.Bool("wait", false, "poll until every run reaches a terminal state")
	group := fs.String("group", "ingestion", "journal group to check")
	interval := fs.Duration("interval", time.Minute, "polling interval with --wait")
	fs.Parse(args)

	logger := newLogger()
	cfg := loadConfig(*cfgPath, logger)
	client := newClient(cfg, logger)
	journal := openJournal(cfg, logger)
	defer journal.Close()

	ctx := context.Background()
	var (
		statuses []ingest.RunStatus
		err      error
	)
	if *wait {
		statuses, err = ingest.WaitRuns(ctx, client, journal, *group, *interval)
	} else {
		statuses, err = ingest.CheckRuns(ctx, client, journal, *group)
	}
	if err != nil {
		logger.Error("status check failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	enc.Encode(statuses)
}

func cmdReports(args []string) {
	fs := flag.NewFlagSet("reports", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	group := fs.String("group", "ingestion", "journal group to summarize")
	fs.Parse(args)

	logger := newLogger()
	cfg := loadConfig(*cfgPath, logger)
	journal := openJournal(cfg, logger)
	defer journal.Close()

	rep, err := ingest.ComputeReport(journal, *group)
	if err != nil {
		logger.Error("report failed", "error", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	enc.Encode(rep)
}

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	dir := fs.String("dir", "", "directory of submitted manifest files")
	batch := fs.Int("batch", 1, "record ids per search request")
	sequence := fs.String("sequence", "", "ingestion-sequence JSON file to verify in order")
	fs.Parse(args)

	logger := newLogger()
	if *dir == "" {
		logger.Error("--dir is required")
		os.Exit(1)
	}
	cfg := loadConfig(*cfgPath, logger)
	client := newClient(cfg, logger)

	ctx := context.Background()
	var (
		found, missing []string
		err            error
	)
	if *sequence != "" {
		found, missing, err = client.VerifySequence(ctx, *dir, *sequence, *batch)
	} else {
		found, missing, err = client.VerifyDirectory(ctx, *dir, *batch)
	}
	if err != nil {
		logger.Error("verification failed", "error", err)
		os.Exit(1)
	}

	logger.Info("records ingested successfully", "count", len(found))
	if len(missing) > 0 {
		logger.Warn("records missing from search", "count", len(missing))
		for _, id := range missing {
			fmt.Println(id)
		}
		os.Exit(1)
	}
}

func cmdDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	dir := fs.String("dir", "", "directory of manifest files whose records to delete")
	fs.Parse(args)

	logger := newLogger()
	if *dir == "" {
		logger.Error("--dir is required")
		os.Exit(1)
	}
	cfg := loadConfig(*cfgPath, logger)
	client := newClient(cfg, logger)

	deleted, failed, err := client.DeleteDirectory(context.Background(), *dir)
	if err != nil {
		logger.Error("delete failed", "error", err)
		os.Exit(1)
	}
	logger.Info("records deleted", "count", len(deleted))
	if len(failed) > 0 {
		logger.Warn("records that could not be deleted", "count", len(failed))
		for _, id := range failed {
			fmt.Println(id)
		}
		os.Exit(1)
	}
}
