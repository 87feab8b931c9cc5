package vthreads

// noCopy marks the pool and synchronization types as non-copyable, so
// go vet's copylocks check reports accidental copies. It has the same
// shape as the unexported noCopy used by the sync package.
type noCopy struct{}

// Lock is a no-op used by the copylocks checker.
func (*noCopy) Lock() {}

// Unlock is a no-op used by the copylocks checker.
func (*noCopy) Unlock() {}
