// Command bulkgen generates barcodes for every row of a CSV, TSV, or XLSX
// file and writes the results into a zip archive. It reuses the same
// validation and dispatch path as the API service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"bargen/internal/bulk"
	"bargen/internal/infra"
	"bargen/internal/providers/barcodeapi"
	"bargen/internal/validate"
)

func main() {
	var (
		file      = flag.String("file", "", "input file (.csv, .tsv, or .xlsx) with a data column and optional filename column")
		symbology = flag.String("symbology", "code128", "barcode symbology for every row")
		format    = flag.String("format", "png", "output image format")
		out       = flag.String("out", "barcodes.zip", "output zip archive")
		workers   = flag.Int("workers", 0, "concurrent dispatches (default from BULK_WORKERS)")
		timeout   = flag.Duration("timeout", 5*time.Minute, "overall deadline for the batch")
		showText  = flag.Bool("show-text", false, "render the data as text under the barcode")
		rotation  = flag.Int("rotation", 0, "rotate the output image by the given degrees")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "bulkgen: -file is required")
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bulkgen: %v\n", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv, "bulkgen")

	f, err := os.Open(*file)
	if err != nil {
		logger.Fatal().Err(err).Msg("open input file")
	}
	defer f.Close()

	batch, err := bulk.Parse(f, *file)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse input file")
	}
	opts := validate.Options{ShowText: *showText, Rotation: *rotation}
	valid := batch.Validate(*symbology, *format, opts)
	logger.Info().
		Int("rows", len(batch.Rows)).
		Int("valid", valid).
		Msg("parsed batch")

	client := barcodeapi.NewClient(barcodeapi.Options{
		BaseURL:        cfg.BarcodeAPIBaseURL,
		APIKey:         cfg.BarcodeAPIKey,
		Logger:         &logger,
		RequestTimeout: cfg.BarcodeAPITimeout,
	})

	poolSize := *workers
	if poolSize <= 0 {
		poolSize = cfg.BulkWorkers
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	submitter := bulk.NewSubmitter(client, poolSize, logger)
	results := submitter.Submit(ctx, batch, *symbology, *format, opts)

	var succeeded, failed, limited, invalid int
	for _, result := range results {
		switch result.Status {
		case bulk.RowStatusSucceeded:
			succeeded++
		case bulk.RowStatusRateLimited:
			limited++
			logger.Warn().Int("line", result.Row.Line).Msg("rate limited")
		case bulk.RowStatusInvalid:
			invalid++
			logger.Warn().Int("line", result.Row.Line).Str("reason", result.Snapshot.Message).Msg("invalid row")
		default:
			failed++
			logger.Warn().Int("line", result.Row.Line).Str("reason", result.Snapshot.Message).Msg("row failed")
		}
	}
	logger.Info().
		Int("succeeded", succeeded).
		Int("failed", failed).
		Int("rate_limited", limited).
		Int("invalid", invalid).
		Msg("batch finished")

	archive, err := bulk.Archive(results)
	if err != nil {
		logger.Fatal().Err(err).Msg("build archive")
	}
	if err := os.WriteFile(*out, archive, 0o644); err != nil {
		logger.Fatal().Err(err).Msg("write archive")
	}
	logger.Info().Str("path", *out).Msg("archive written")
}
