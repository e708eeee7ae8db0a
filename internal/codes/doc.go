// Package codes loads fan device definitions (IR/RF code files).
//
// Definitions are JSON files named after their device code, e.g.
// codes/fan/1020.json. When a file is missing locally and a download URL
// is configured, it is fetched once, validated and cached in the local
// directory.
package codes
