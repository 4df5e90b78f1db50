// Package jobstats is an ingestion pipeline for externally captured job
// posting statistics. Capture agents push raw view/application counts for a
// posting; the pipeline rate-limits bursts, coalesces near-duplicate events
// per posting, normalizes payloads into immutable records, caches the most
// recent record per posting with a freshness TTL, and broadcasts every
// accepted record to in-process subscribers. An active-entity tracker layers
// a small state machine on top so a display collaborator always has either
// the freshest record for the posting in focus or an explicit waiting signal.
//
// Layout:
//   - pkg/ratelimit, pkg/debounce, pkg/ring, pkg/retry: generic infrastructure
//   - record: the normalized record type and the strict ingest-boundary parser
//   - statscache: per-posting last-write-wins cache with advisory freshness
//   - broadcast: synchronous in-process pub/sub with bounded history
//   - pipeline: the ingestion pipeline wiring the above together
//   - tracker: active-posting state machine feeding a display collaborator
//   - input/websocket: ingress for capture agents
//   - forward, natsclient: best-effort record forwarding over NATS
//   - component, errors, metric, config: lifecycle contract, error
//     taxonomy, Prometheus surface, and layered configuration
//   - service, cmd/jobstats: composition and entry point
package jobstats
