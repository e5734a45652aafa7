// Package setup resolves the conventions every command shares: the process
// environment snapshot, the extension's package name, the version stamp and
// the optional roamjs.yaml overrides.
//
// Commands read configuration from the Environment value returned here and
// never from os.Getenv directly. This is the only package that keeps a
// package-level logger.
package setup
