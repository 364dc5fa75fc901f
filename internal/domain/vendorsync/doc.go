// Package vendorsync holds the domain model of the vendor data
// synchronization engine: sync jobs and their state machine, vendor records,
// conflict detection and resolution, the retry policy, and the ports
// (adapters, queue, repositories) the application layer drives.
package vendorsync
