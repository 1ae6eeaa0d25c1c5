/*
Package types defines the shared data model for the glotta translation fabric.

Core types:

  - Task: a client-submitted batch of 1..10 images with one target language,
    JSON-serialized into the coordination store under tasks:{id}. Image
    payloads are stored separately under task_images:{id}.
  - ImageResult: per-image outcome, parallel to the submitted order. A task
    aggregates to completed when at least one image completed and every
    image is terminal.
  - TaskStatus: pending → processing → completed|failed. Image results skip
    the processing state.
  - Language: the thirteen supported target languages; the string value is
    both the wire value and the prompts file key.
  - Credential: an API key entry with RPM/RPD/TPM limits from the
    credentials file.

Snapshot types (QueueStats, PoolStats, InstanceStatus, ClusterStats,
ScalingDecision) carry monitoring state between the store, the worker pool,
and the stats endpoint.

All timestamps are UTC. Task and ImageResult use pointer timestamps for
fields that are unset until a state transition.
*/
package types
