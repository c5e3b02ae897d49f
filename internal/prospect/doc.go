// Package prospect defines the core types shared across the discovery,
// enrichment, persistence, and delivery subsystems.
package prospect
