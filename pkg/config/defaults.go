package config

import (
	"github.com/Torimasen-tech/lingfang/internal/llm"
	"github.com/Torimasen-tech/lingfang/internal/tmcache"
)

// Model defaults.
const (
	DefaultProvider  = llm.ProviderOpenAI
	DefaultModelName = "qwen-max"
)

// Checkpoint defaults.
const (
	DefaultBackupInterval = 10
	DefaultResume         = true
)

// Cache defaults.
const (
	DefaultCacheFrontSize = tmcache.DefaultFrontSize
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)
