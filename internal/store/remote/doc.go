// Package remote implements a store backend that talks to a data service
// through authenticated sessions.
//
// The service is emulated by a SQLite catalogue at the configured server
// address. Accounts are created with Provision; Connect checks credentials
// and opens a session, Disconnect closes it. Fileset content is uploaded as
// blobs and downloaded into the cache directory on read, so items returned by
// Get always reference local files.
package remote
