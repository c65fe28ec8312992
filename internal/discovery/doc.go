// Package discovery keeps the selected heat-recovery unit visible to the
// automation platform over MQTT.
//
// # Key Types
//
//   - Publisher: owns discovery documents, the periodic retained state, the
//     availability topic, and the command subscriptions feeding the timeline.
//   - Slugify: normalises human-readable names into topic-safe ASCII slugs.
//
// # Reconciliation
//
// Boost-flagged timeline modes surface as button entities. The publisher
// persists a {modeId → publishedSlug} map and diffs it against the current
// mode set on every cycle: a renamed mode produces exactly one removal
// publish for the old slug followed by a publish under the new slug, and a
// deleted mode produces a removal with no replacement. Removal is an empty
// retained publish to the old discovery topic.
//
// # Flow Control
//
// Every outbound publish is serialized through a single queue with a fixed
// inter-publish delay so that a discovery burst after reconnect does not
// overrun broker limits. A publish failure is logged and retried on the
// next natural cycle, never blocking HRU control.
package discovery
