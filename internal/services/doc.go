// Package services holds the license operations shared by the HTTP surface
// and the licensecheck command. Services turn an acquisition into views
// that can be rendered as JSON or text; they never write responses.
package services
