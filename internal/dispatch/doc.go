// Package dispatch tracks the externally assigned IDs of published dispatches
// and publishes dispatch definitions through a remote client.
//
// The IDStore maps dispatch names to IDs and is persisted as a flat JSON object.
// Compose joins dispatch definitions with the store into render contexts, and
// ExtractID reads the ID the server issued for a newly created dispatch out of
// its HTML response.
package dispatch
