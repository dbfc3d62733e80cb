package config

import (
	"flag"
	"net/url"
	"time"
)

// Cli holds every knob the service takes. Populated once in main from flags
// (overridable via env vars) and injected into constructors; nothing in the
// pipeline reads configuration from anywhere else.
type Cli struct {
	HTTPAddress string
	PromPort    int

	// Auth
	JWTSecret string

	// Catalog database
	DBConnectionString string

	// Object storage
	StorageEndpoint  *url.URL
	StorageRegion    string
	StorageBucket    string
	StorageAccessKey string
	StorageSecretKey string

	// Pipeline
	ScratchRoot       string
	SegmentDurationS  int
	SubprocessTimeout time.Duration
	UploadConcurrency int
}

func parseURL(s string, dest **url.URL) error {
	if s == "" {
		*dest = nil
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if _, err = url.ParseQuery(u.RawQuery); err != nil {
		return err
	}
	*dest = u
	return nil
}

func URLVarFlag(fs *flag.FlagSet, dest **url.URL, name, value, usage string) {
	if err := parseURL(value, dest); err != nil {
		panic(err)
	}
	fs.Func(name, usage, func(s string) error {
		return parseURL(s, dest)
	})
}
