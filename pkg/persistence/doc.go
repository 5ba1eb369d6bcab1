// Package persistence stores connection history and application settings.
//
// Values are JSON documents kept under two keys in a KV backend:
//
//	history   ordered list of at most 10 HistoryEntry, most recently used first
//	settings  partial Settings object, merged against defaults on every read
//
// Three backends are provided: FileKV (one JSON file per key in a state
// directory), SQLiteKV (a single key/value table) and MemoryKV.
//
// Reads never fail: storage or decode errors are logged and degrade to
// defaults or an empty history. Writes return their errors.
package persistence
