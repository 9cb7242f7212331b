// Package gcp holds the shared Google API client plumbing.
package gcp

import (
	"google.golang.org/api/option"
)

// OAuth scopes used by the Drive store and the Sheets ledger.
const (
	ScopeDrive        = "https://www.googleapis.com/auth/drive"
	ScopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"
)

// ClientOptions picks the service-account credentials to use. Inline JSON
// wins over a credentials file; with neither, Application Default
// Credentials apply.
func ClientOptions(credentialsFile string, credentialsJSON []byte, scopes ...string) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case len(credentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	case credentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	if len(scopes) > 0 {
		opts = append(opts, option.WithScopes(scopes...))
	}
	return opts
}
