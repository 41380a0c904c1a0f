// Package constants defines magic numbers and default values used throughout go-wirehttp
package constants

import "time"

// Timeouts
const (
	DefaultConnTimeout  = 10 * time.Second
	DefaultDNSTimeout   = 5 * time.Second
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
)

// Wire limits
const (
	DefaultReadChunkSize = 4096 // bytes requested per socket read
	MaxStatusLineBytes   = 8 * 1024
	MaxHeaderBytes       = 64 * 1024
	MaxContentLength     = 1024 * 1024 * 1024 * 1024 // 1TB
)

// Buffer limits
const (
	DefaultBodyMemLimit = 4 * 1024 * 1024 // 4MB
)

// Request defaults
const (
	DefaultHTTPPort  = 80
	DefaultProto     = "HTTP/1.1"
	DefaultUserAgent = "go-wirehttp/1.0"
)
