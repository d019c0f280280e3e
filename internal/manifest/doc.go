// Package manifest models the durable snapshot index kept at a backup root
// and the retention rules applied to it. Everything here is pure data
// transformation; reading and writing the manifest is the provider's job.
package manifest
