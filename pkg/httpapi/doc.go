// Package httpapi exposes the operator surface of the rollout system over
// HTTP as a mountable chi router.
//
// Routes:
//
//	GET  /policy                     current policy snapshot
//	GET  /features/{key}/state      rollout state + effective rule
//	POST /features/{key}/target     register a rollout target
//	POST /features/{key}/resume     Paused/Complete → Ramping
//	POST /features/{key}/rollback   kill switch on, state RolledBack
//	POST /features/{key}/rearm      RolledBack → Paused, kill switch off
//	PUT  /features/{key}/percent    retarget desired percent
//	GET  /features/{key}/decision   preview a decision for an identity
//
// Mutating routes delegate to the controller and therefore share its publish
// discipline; this package holds no rollout logic of its own.
package httpapi
