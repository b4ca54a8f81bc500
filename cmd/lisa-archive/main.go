// Package main implements the lisa-archive binary for managing archived
// trace bundles: push, fetch, list and remove.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/vdonnefort/lisa/internal/config"
	"github.com/vdonnefort/lisa/internal/storage"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		envFile     string
		dataDir     string
		bundleDir   string
		pushID      string
		fetchID     string
		removeID    string
		listMode    bool
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&envFile, "env", "", "Path to dotenv file (default .env)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&bundleDir, "bundle", "", "Local bundle directory for -push")
	flag.StringVar(&pushID, "push", "", "Archive a local bundle under this trace ID")
	flag.StringVar(&fetchID, "fetch", "", "Fetch an archived bundle and print its local path")
	flag.StringVar(&removeID, "remove", "", "Remove an archived bundle")
	flag.BoolVar(&listMode, "list", false, "List archived bundles")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "lisa-archive - manage archived trace bundles\n\n")
		fmt.Fprintf(os.Stderr, "Usage: lisa-archive [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lisa-archive -push tr-9f2 -bundle ./trace.bundle\n")
		fmt.Fprintf(os.Stderr, "  lisa-archive -list\n")
		fmt.Fprintf(os.Stderr, "  lisa-archive -fetch tr-9f2\n")
		fmt.Fprintf(os.Stderr, "  lisa-archive -remove tr-9f2\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("lisa-archive version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, envFile, dataDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	archive, err := newArchive(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize archive: %v", err)
	}

	ctx := context.Background()

	switch {
	case listMode:
		names, err := archive.List(ctx)
		if err != nil {
			log.Fatalf("Failed to list bundles: %v", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}

	case pushID != "":
		if bundleDir == "" {
			log.Fatalf("-push requires -bundle")
		}
		if err := archive.Push(ctx, pushID, bundleDir); err != nil {
			log.Fatalf("Failed to push bundle: %v", err)
		}
		log.Printf("Bundle %s pushed", pushID)

	case fetchID != "":
		dir, err := archive.Fetch(ctx, fetchID)
		if err != nil {
			log.Fatalf("Failed to fetch bundle: %v", err)
		}
		fmt.Println(dir)

	case removeID != "":
		if err := archive.Remove(ctx, removeID); err != nil {
			log.Fatalf("Failed to remove bundle: %v", err)
		}
		log.Printf("Bundle %s removed", removeID)

	default:
		flag.Usage()
		os.Exit(2)
	}
}

// loadConfig layers the configuration sources: file, then environment,
// then command line flags.
func loadConfig(configFile, envFile, dataDir string) (*config.Config, error) {
	config.LoadEnvFile(envFile)

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	cfg.Resolve()
	return cfg, nil
}

// newArchive builds the bundle archive from the storage configuration.
func newArchive(cfg *config.Config) (*storage.BundleArchive, error) {
	var store storage.ObjectStorage
	var err error

	switch cfg.Storage.Type {
	case "local":
		store, err = storage.NewLocalStorage(cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if cfg.Storage.S3.Region != "" {
			s3Cfg.Region = cfg.Storage.S3.Region
		}
		if cfg.Storage.S3.Endpoint != "" {
			s3Cfg.Endpoint = cfg.Storage.S3.Endpoint
			s3Cfg.UsePathStyle = true
		}
		store, err = storage.NewS3Storage(context.Background(), cfg.Storage.S3.Bucket, s3Cfg)
	default:
		err = fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if err != nil {
		return nil, err
	}

	cacheBytes := int64(cfg.Storage.CacheSizeMB) * 1024 * 1024
	return storage.NewBundleArchive(store, cfg.Storage.DownloadDir, cacheBytes), nil
}
