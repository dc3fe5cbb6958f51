// Package testutil provides store fixtures shared by package tests.
//
// Tests that exercise behaviour common to every adapter range over StoreKinds and
// build a fresh store for each kind with NewStore. Remote stores are provisioned
// in a temporary catalogue with a fixed account, so no external service is needed.
package testutil
