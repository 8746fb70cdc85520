// Package worker implements the background compute worker: extractive
// summaries, strategy analysis over notes, todo prioritization, a password
// health check, the daily briefing, and embedding based similarity.
//
// The computations are plain functions and can be called directly. Worker
// wraps them in a goroutine that speaks the protocol package's messages, so
// the interactive side never blocks on them.
package worker
