// Package lib provides helper types and functions for all bqdestination
// sub-packages.
package lib

import (
	"os"
)

// ReadKeyFile returns the raw contents of a service account JSON key,
// acquired via https://console.cloud.google.com.
//
// The returned bytes are what auth.BuildTokenRequest expects, and what the
// "service_json" component setting holds.
func ReadKeyFile(keyPath string) (b []byte, err error) {
	b, err = os.ReadFile(keyPath)

	// No need to check if err != nil since we return anyways.
	return
}
