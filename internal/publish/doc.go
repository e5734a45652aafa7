// Package publish ships a built extension: it exchanges a developer token
// for short-lived storage credentials, uploads every file under a versioned
// and a current key, optionally invalidates the CDN, and then drives the
// best-effort GitHub release and Roam Depot pull request.
package publish
