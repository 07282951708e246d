// Package store defines the job-run persistence contract. Implementations live
// in other packages; this package must not import database drivers.
package store
