// Package store defines the capability set a dataset backend implements and the scoped,
// re-entrant connection that guards every backend call.
//
// A Store wraps one Backend (a local directory tree or a remote service) chosen from
// explicit configuration. All reads and writes must happen inside a connection scope:
//
//	if err := s.Connect(ctx); err != nil {
//	    return err // StoreConnectionError
//	}
//	defer s.Disconnect(ctx)
//
// Nested Connect calls are counted; the backend session is released when the outermost
// scope exits, whether or not the body failed. Calls outside a scope fail with NotConnected.
//
// Backends translate their native failures into the errs taxonomy before returning.
package store
