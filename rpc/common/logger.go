package common

import "github.com/ramforge/ramforge/internal/rlog"

// InitLoggers installs the dragonboat logger factory and configures every
// package's log level from config. The adapter itself lives in
// internal/rlog so non-RPC packages (master, hashindex, recovery,
// dispatch) can depend on it without pulling in this package's transport
// and serialization machinery.
func InitLoggers(config ServerConfig) {
	rlog.Init(config.LogLevel)
}
