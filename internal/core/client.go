package core

import (
	"github.com/git-pkgs/hishell/client"
)

// Type aliases so source implementations only import core.
type (
	RateLimiter = client.RateLimiter
	Client      = client.Client
	Option      = client.Option
	URLBuilder  = client.URLBuilder
	BaseURLs    = client.BaseURLs
)

// Function aliases.
var (
	DefaultClient  = client.DefaultClient
	NewClient      = client.NewClient
	WithTimeout    = client.WithTimeout
	WithMaxRetries = client.WithMaxRetries
	WithBaseDelay  = client.WithBaseDelay
	WithRateLimit  = client.WithRateLimiter
	BuildURLs      = client.BuildURLs
)
