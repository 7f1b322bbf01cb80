// Package license reads and validates license records.
//
// # Reading
//
// A Reader asks every active locator strategy for candidate locations, parses
// the content found there and keeps the records of the requested product
// that carry a signature and the supported license version:
//
//	reader := license.NewReader(license.StrategiesFrom(opts), logger, nil)
//	records, reg := reader.ReadLicenses(ctx, "Acme")
//	if reg.IsFatal() {
//	    // no usable record anywhere, reg explains why
//	}
//
// A bad or missing file at one location never stops the search. The call
// fails only when no location produced a complete record.
//
// # Canonical payload
//
// FullLicenseInfo.PrintForSign returns the exact text a license signature is
// computed over: the upper-cased project name followed by every limit except
// lic_ver and sig, in the order they appear in the file, with no separators.
// Changing that order or the trimming rules invalidates issued licenses.
//
// # Acquisition
//
// The reader does not verify signatures. An Acquirer combines the reader with
// a signature.Verifier and the date and version limits of each record, and
// accepts the first record that passes.
package license
