// Package broadcast is a typed publish/subscribe hub.
//
// Publish never blocks: each subscriber owns an ordered queue and drains it
// with Next at its own pace. A subscriber sees exactly the values published
// after Subscribe returned, in publish order. Closed subscribers are skipped
// silently, and one whose backlog passes Options.MaxPending is cut off with
// ErrSlowSubscriber.
//
// The daemon runs two hubs: lifecycle events and raw log lines.
package broadcast
