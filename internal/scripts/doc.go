// Package scripts resolves script sources for the runner.
//
// A source is one of:
//   - a doublestar glob such as "scripts/**/*.js"
//   - a directory, walked for files with a script extension
//   - an http(s) URL, fetched with retries
//
// Sources ending in .gz or .zst are decompressed. Files that do not detect
// as text are skipped.
package scripts
