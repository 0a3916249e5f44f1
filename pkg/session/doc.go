/*
Package session manages live wizard sessions.

Each session owns one orchestration controller. The Manager serializes operations per
session with a reference-counted lock map, and serializes registry mutation with session
start under a registry-wide lock that can be backed by a ports.DistributedLocker.

By default every session navigates its own clone of the step registry, so activating a
flow profile in one session never reorders steps in another. With isolation disabled all
sessions share the registry and profile operations take the registry-wide lock.
*/
package session
