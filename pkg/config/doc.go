// Package config loads the runtime configuration of the event-stream
// resource.
//
// # Sources
//
// Configuration is assembled in three layers, later layers winning:
//
//  1. Built-in defaults (Default): partition "aws", one shard, a 15s settle
//     delay, and wait timeouts of 180s, 40s and 20s for the stream, role and
//     policy.
//  2. An optional file in YAML (.yaml, .yml), JSON (.json) or CUE (.cue).
//     CUE files are unified with a closed schema, so unknown fields and
//     malformed durations are reported with file positions.
//  3. Environment overrides: AWS_REGION, EVENTSTREAM_REGION,
//     EVENTSTREAM_PARTITION, EVENTSTREAM_SETTLE_DELAY, EVENTSTREAM_JOURNAL_PATH,
//     LOG_LEVEL and others.
//
// The result is validated with go-playground/validator struct tags. Region
// has no default and must come from the file or the environment.
//
// # Usage Example
//
//	loader, err := config.NewLoader(nil)
//	if err != nil {
//	    return err
//	}
//	cfg, err := loader.Load("eventstream.cue")
//	if err != nil {
//	    return err
//	}
//	waiter := engine.NewPollingWaitPolicy(probe, cfg.EngineWait(), logger)
package config
