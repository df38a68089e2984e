/*
Package log provides structured logging for the accounts engine using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

The logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("storage")                 │          │
	│  │  - WithSlot(142857)                         │          │
	│  │  - WithPubkey("4Nd1m...")                   │          │
	│  │  - WithOwner("Tokenkeg...")                 │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "snapshot",                 │          │
	│  │    "slot": 142857,                          │          │
	│  │    "time": "2026-07-30T10:30:00Z",         │          │
	│  │    "message": "snapshot written"            │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2026-07-30T10:30:00Z INF snapshot written component=snapshot slot=142857 │ │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all engine packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs (storage, index, snapshot, stw)
  - WithSlot: Add current slot to all logs
  - WithPubkey: Add account public key to all logs
  - WithOwner: Add program owner to all logs

# Usage

Initializing the Logger:

	import "github.com/magicblock-labs/go-accountsdb/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("accounts engine initialized")
	log.Debug("evaluating preemptive flush threshold")
	log.Warn("snapshot ring buffer at capacity, evicting oldest")
	log.Error("failed to reload index after rollback")
	log.Fatal("cannot start without a writable storage directory")

Component Loggers:

	storageLog := log.WithComponent("storage")
	storageLog.Info().Msg("storage file grown")

	snapshotLog := log.WithComponent("snapshot").With().Uint64("slot", slot).Logger()
	snapshotLog.Info().Msg("snapshot written")

# Integration Points

This package integrates with:

  - internal/storage: logs the fatal "database full" condition
  - internal/index: logs missing reverse-owner entries during owner-index cleanup
  - internal/snapshot: logs failed ring-buffer evictions
  - internal/accountsdb: logs failed flushes, snapshots, rollbacks and owner repairs, and reallocations at debug level
  - cmd/accountsdb-tool: logs CLI operator actions

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

# Security

Log Content:
  - Never log raw account data bytes
  - Pubkeys and owners are logged hex-encoded, not raw
  - Review logs before sharing externally

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
