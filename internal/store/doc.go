// Package store defines the persistence model for events and exhibitors and
// the Repository interface the reconciler writes through. Implementations live
// in internal/storage; this package must not import database drivers.
package store
