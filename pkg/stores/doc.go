// Package stores keeps a history of recipe runs in SQLite. Each run records
// the selected strategy, the platform facts, the emitted graph and any policy
// violations found when it was validated.
package stores
