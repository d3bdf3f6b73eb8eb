// Package policy decides which channels receive a notification.
//
// EnabledChannels merges global channel toggles with tenant overrides per
// channel. ResolveTargets intersects recipient preferences with that set,
// adds the event's forced channels and, for critical events that would
// otherwise reach nobody, falls back to critical channels.
//
// KillSwitch disables dispatch per event or per tenant through feature
// flags named by EventKillFlag and TenantKillFlag.
package policy
