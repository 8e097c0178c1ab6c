package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/andresuchdata/frameio-archiver/internal/app"
	"github.com/andresuchdata/frameio-archiver/internal/archive"
	"github.com/andresuchdata/frameio-archiver/internal/config"
	"github.com/andresuchdata/frameio-archiver/internal/domain"
	"github.com/andresuchdata/frameio-archiver/pkg/logger"
)

func newResourceIDFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "resource-id",
		Usage:    "Asset, project or folder id to archive",
		Required: true,
	}
}

func newFormatFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "format",
		Usage: "Output format: json or yaml",
		Value: "json",
	}
}

func main() {
	cliApp := &cli.App{
		Name:  "archiver",
		Usage: "Archive media asset trees to S3-compatible object storage",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
		},
		Before: func(c *cli.Context) error {
			cfg := config.Load()
			logger.SetFormat(cfg.Log.Format)
			logger.SetLevel(c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "archive",
				Usage: "Resolve a resource and stream every file to the destination bucket",
				Flags: []cli.Flag{
					newResourceIDFlag(),
					&cli.StringFlag{
						Name:  "destination",
						Usage: "Destination alias or bucket (defaults to STORAGE_BUCKET)",
					},
					newFormatFlag(),
				},
				Action: runArchive,
			},
			{
				Name:  "manifest",
				Usage: "Resolve a resource and print the planned object keys without transferring",
				Flags: []cli.Flag{
					newResourceIDFlag(),
					newFormatFlag(),
				},
				Action: runManifest,
			},
			{
				Name:  "import",
				Usage: "Copy one stored object back into the asset tree",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "resource-id",
						Usage: "Asset whose project receives the import",
					},
					&cli.StringFlag{
						Name:  "project-id",
						Usage: "Project that receives the import (overrides --resource-id)",
					},
					&cli.StringFlag{
						Name:     "key",
						Usage:    "Object key to import",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "destination",
						Usage: "Destination alias or bucket holding the object (defaults to STORAGE_BUCKET)",
					},
					newFormatFlag(),
				},
				Action: runImport,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("archiver failed")
	}
}

func runArchive(c *cli.Context) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.VerifyBuckets(ctx, cfg); err != nil {
		return err
	}

	report, runErr := application.Service.Run(ctx, archive.Request{
		ResourceID:  c.String("resource-id"),
		Destination: c.String("destination"),
	})
	if report != nil {
		if err := write(c.App.Writer, c.String("format"), report); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if report.Status != domain.JobCompleted {
		return cli.Exit(fmt.Sprintf("archive finished with status %s", report.Status), 2)
	}
	return nil
}

func runImport(c *cli.Context) error {
	if c.String("resource-id") == "" && c.String("project-id") == "" {
		return cli.Exit("one of --resource-id or --project-id is required", 1)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	if application.Importer == nil {
		return cli.Exit(fmt.Sprintf("source %s does not support imports", cfg.Source.Provider), 1)
	}
	bucket, err := application.Service.Bucket(c.String("destination"))
	if err != nil {
		return err
	}

	result, err := application.Importer.Import(ctx, archive.ImportRequest{
		ResourceID: c.String("resource-id"),
		ProjectID:  c.String("project-id"),
		Bucket:     bucket,
		Key:        c.String("key"),
	})
	if err != nil {
		return err
	}
	return write(c.App.Writer, c.String("format"), result)
}

type manifestDoc struct {
	ResourceID string                `json:"resource_id" yaml:"resource_id"`
	Project    string                `json:"project" yaml:"project"`
	Files      int                   `json:"files" yaml:"files"`
	TotalSize  string                `json:"total_size" yaml:"total_size"`
	Entries    []manifestEntry       `json:"entries" yaml:"entries"`
	Failures   []domain.FetchFailure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

type manifestEntry struct {
	ID    string `json:"id" yaml:"id"`
	Key   string `json:"key" yaml:"key"`
	Bytes int64  `json:"bytes" yaml:"bytes"`
	Size  string `json:"size" yaml:"size"`
}

func runManifest(c *cli.Context) error {
	cfg := config.Load()

	source, err := app.NewSource(cfg.Source)
	if err != nil {
		return err
	}

	// planning never touches the object store
	svc := archive.NewService(source, nil, nil, archive.Destinations{}, app.ArchiveConfig(cfg))
	manifest, entries, err := svc.Plan(c.Context, c.String("resource-id"))
	if err != nil {
		return err
	}

	doc := manifestDoc{
		ResourceID: c.String("resource-id"),
		Project:    manifest.Project.Name,
		Files:      len(entries),
		Failures:   manifest.Failures,
	}
	var total int64
	for _, e := range entries {
		total += e.Leaf.SizeBytes
		doc.Entries = append(doc.Entries, manifestEntry{
			ID:    e.Leaf.ID,
			Key:   e.Key(),
			Bytes: e.Leaf.SizeBytes,
			Size:  domain.FormatBytes(e.Leaf.SizeBytes, domain.FormatSize),
		})
	}
	doc.TotalSize = domain.FormatBytes(total, domain.FormatSize)

	return write(c.App.Writer, c.String("format"), doc)
}

func write(w io.Writer, format string, v any) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown output format %q", format)
}

