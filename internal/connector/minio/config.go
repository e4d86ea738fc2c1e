package minio

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const (
	defaultBucket     = "meno-sync"
	defaultBasePrefix = "runs"
)

// Config describes where run artifacts are stored. An empty EndpointURL
// selects the local directory store rooted at LocalRoot.
type Config struct {
	EndpointURL     string
	Region          string
	UseSSL          bool
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	BasePrefix      string
	LocalRoot       string
}

// Remote reports whether the config points at a MinIO/S3 endpoint.
func (c *Config) Remote() bool {
	return c.EndpointURL != ""
}

// Validate applies defaults and checks the remote parameters.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		c.Bucket = defaultBucket
	}
	if c.BasePrefix == "" {
		c.BasePrefix = defaultBasePrefix
	}
	c.BasePrefix = strings.Trim(c.BasePrefix, "/")

	if !c.Remote() {
		return nil
	}
	if _, err := url.Parse(c.EndpointURL); err != nil {
		return wrapError(CodeEndpointUnreachable, true, errors.Wrap(err, "invalid endpoint URL"))
	}
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return wrapError(CodeAuthInvalid, false, errors.New("access key and secret key are required"))
	}
	return nil
}

// NewObjectStore builds the store selected by cfg.
func NewObjectStore(cfg *Config) (ObjectStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Remote() {
		return NewLocalStore(cfg.LocalRoot), nil
	}
	return NewS3Client(cfg)
}
