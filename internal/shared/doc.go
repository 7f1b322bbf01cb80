// Package shared holds code used across packages that belongs to no single
// layer. Its testutil subpackage provides log capture and license signing
// helpers for tests:
//
//	logger, logs := testutil.NewTestLogger(t)
//	signer := testutil.NewSigner(t)
//	section := signer.Section("Acme", payload, "max_users", "10")
//
// Nothing here may import a domain package, so the license package's own
// tests can use it.
package shared
