// Package config loads codeindex settings.
//
// Values are layered: DefaultConfig, then the project's .codeindex.yml, then
// CODEINDEX_* environment variables, where a double underscore separates
// nesting levels (CODEINDEX_INDEX__STREAM_BATCH_SIZE=100). Durations use Go
// syntax ("30s", "500ms"). Include and exclude lists may be given in the
// environment as comma separated globs.
package config
