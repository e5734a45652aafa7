// Package lambdas bundles the functions under a project's lambdas directory
// into deterministic zip archives and pushes changed code to AWS Lambda.
//
// Function names follow <prefix>_<extension>_<function>, so a file
// lambdas/search.ts in the query-builder extension deploys to
// RoamJS_query-builder_search by default.
package lambdas
