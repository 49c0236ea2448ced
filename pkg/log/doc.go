/*
Package log provides the cache's structured logging, wrapping zerolog
with a global logger plus a handful of component-scoped child loggers.

Initialize once at process start:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

Each internal package asks for a logger scoped to itself and attaches
whatever identifying fields apply to the call:

	logger := log.WithComponent("cache").With().Str("db_path", path).Logger()
	logger.Debug().Str("sub_db", "ds").Int("count", n).Msg("bulk_save committed")

Debug is for the high-frequency, per-call detail (batch commits,
catalog sync); Info marks handles being created or opened;
Warn marks a recovered failure, such as a catalog persist that failed
during Close and was discarded rather than propagated.
*/
package log
