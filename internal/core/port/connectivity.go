package port

import "context"

// ConnectivityMonitor reports whether the remote system of record is
// reachable and notifies subscribers on transitions. The sync coordinator
// consults it before draining; everything else in this layer works offline.
type ConnectivityMonitor interface {
	Online(ctx context.Context) bool
	// Subscribe registers a callback invoked with the new status on every
	// online/offline transition. The returned function removes the
	// subscription and is safe to call more than once.
	Subscribe(fn func(online bool)) (unsubscribe func())
}
