/*
Package log provides structured logging for glotta using zerolog.

A single root logger is built at startup by Init; every long-lived component
(store client, key rotator, task manager, worker pool, observer, API server)
derives a child logger with WithComponent and adds its own identifiers per
call site.

# Usage

Initializing the logger:

	import "github.com/glottahq/glotta/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
	})

Component loggers:

	poolLog := log.WithComponent("pool")
	poolLog.Info().Int("workers", target).Msg("scaling")

	poolLog.Debug().
		Str("task_id", taskID).
		Int("total_images", n).
		Msg("task claimed")

# Log Output

JSON format:

	{"level":"info","component":"tasks","task_id":"...","time":"2026-08-24T10:30:00Z","message":"task created"}

Console format:

	2026-08-24T10:30:00Z INF task created component=tasks task_id=...
*/
package log
