package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	_ "github.com/lib/pq"
	"github.com/peterbourgon/ff/v3"
	"golang.org/x/sync/errgroup"

	"github.com/gipjazes/ingest-api/api"
	"github.com/gipjazes/ingest-api/catalog"
	"github.com/gipjazes/ingest-api/clients"
	"github.com/gipjazes/ingest-api/config"
	"github.com/gipjazes/ingest-api/metrics"
	"github.com/gipjazes/ingest-api/pipeline"
	"github.com/gipjazes/ingest-api/scratch"
	"github.com/gipjazes/ingest-api/video"
)

func main() {
	err := flag.Set("logtostderr", "true")
	if err != nil {
		glog.Fatal(err)
	}
	fs := flag.NewFlagSet("ingest-api", flag.ExitOnError)
	cli := config.Cli{}

	version := fs.Bool("version", false, "print application version")

	// listen addresses
	fs.StringVar(&cli.HTTPAddress, "http-addr", "0.0.0.0:8080", "Address to bind for the public ingest HTTP API")
	fs.IntVar(&cli.PromPort, "prom-port", 2112, "Prometheus metrics listen port")

	// auth
	fs.StringVar(&cli.JWTSecret, "jwt-secret", "your-secret-key", "Secret used to verify upload bearer tokens")

	// catalog database
	fs.StringVar(&cli.DBConnectionString, "db-connection-string", "", "Connection string for the catalog Postgres DB. Takes the form: host=X port=X user=X password=X dbname=X")

	// object storage
	config.URLVarFlag(fs, &cli.StorageEndpoint, "storage-endpoint", "", "Custom S3-compatible endpoint. Leave empty for AWS S3")
	fs.StringVar(&cli.StorageRegion, "storage-region", "us-east-1", "Region of the media bucket")
	fs.StringVar(&cli.StorageBucket, "storage-bucket", "", "Bucket that published artifacts are written to")
	fs.StringVar(&cli.StorageAccessKey, "storage-access-key", "", "Access key for the media bucket. Leave empty to use the ambient AWS credential chain")
	fs.StringVar(&cli.StorageSecretKey, "storage-secret-key", "", "Secret key for the media bucket")

	// pipeline
	fs.StringVar(&cli.ScratchRoot, "scratch-root", "", "Directory that per-job scratch directories are created under. Defaults to the OS temp dir")
	fs.IntVar(&cli.SegmentDurationS, "segment-duration", 10, "Target HLS segment duration in seconds")
	fs.DurationVar(&cli.SubprocessTimeout, "subprocess-timeout", 5*time.Minute, "Max run time for each ffmpeg/ffprobe invocation")
	fs.IntVar(&cli.UploadConcurrency, "upload-concurrency", 4, "Number of parallel segment uploads per job")

	_ = fs.String("config", "", "config file (optional)")

	err = ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("INGEST_API"),
	)
	if err != nil {
		glog.Fatalf("error parsing cli: %s", err)
	}
	if len(fs.Args()) > 0 {
		glog.Fatalf("unexpected extra arguments on command line: %v", fs.Args())
	}
	err = flag.CommandLine.Parse(nil)
	if err != nil {
		glog.Fatal(err)
	}

	if *version {
		fmt.Printf("ingest-api version: %s\n", config.Version)
		return
	}

	if cli.StorageBucket == "" {
		glog.Fatal("a storage bucket is required")
	}
	if cli.DBConnectionString == "" {
		glog.Fatal("a catalog database connection string is required")
	}

	db, err := sql.Open("postgres", cli.DBConnectionString)
	if err != nil {
		glog.Fatalf("Error creating postgres catalog connection: %v", err)
	}

	// Without this, we've run into issues with exceeding our open connection limit
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	store, err := clients.NewS3Store(clients.S3Config{
		Endpoint:  cli.StorageEndpoint,
		Region:    cli.StorageRegion,
		Bucket:    cli.StorageBucket,
		AccessKey: cli.StorageAccessKey,
		SecretKey: cli.StorageSecretKey,
	})
	if err != nil {
		glog.Fatalf("Error creating object store client: %v", err)
	}

	scratchManager, err := scratch.NewManager(cli.ScratchRoot)
	if err != nil {
		glog.Fatalf("Error preparing scratch root: %v", err)
	}

	catalogStore := catalog.NewStore(db)
	coordinator, err := pipeline.NewCoordinator(pipeline.CoordinatorOpts{
		Scratch:           scratchManager,
		Prober:            &video.Probe{Timeout: cli.SubprocessTimeout},
		Frames:            &video.Thumbnailer{Timeout: cli.SubprocessTimeout},
		Segmenter:         &video.HLSSegmenter{SegmentDuration: cli.SegmentDurationS, Timeout: cli.SubprocessTimeout},
		Store:             store,
		Catalog:           catalogStore,
		Capabilities:      video.Detect(),
		UploadConcurrency: cli.UploadConcurrency,
	})
	if err != nil {
		glog.Fatalf("Error creating pipeline coordinator: %v", err)
	}

	group, ctx := errgroup.WithContext(context.Background())

	group.Go(func() error {
		return handleSignals(ctx)
	})

	group.Go(func() error {
		return api.ListenAndServe(ctx, cli, coordinator, catalogStore)
	})

	group.Go(func() error {
		return metrics.ListenAndServe(cli.PromPort)
	})

	err = group.Wait()
	glog.Infof("Shutdown complete. Reason for shutdown: %s", err)
}

func handleSignals(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	for {
		select {
		case s := <-c:
			glog.Errorf("caught signal=%v, attempting clean shutdown", s)
			return fmt.Errorf("caught signal=%v", s)
		case <-ctx.Done():
			return nil
		}
	}
}
