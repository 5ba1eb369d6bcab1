// Package testutil provides in-memory transport fakes shared by package
// tests.
package testutil
