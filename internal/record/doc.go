// Package record provides the nested metadata values attached to datasets and entries.
//
// Provenance records and dataset definitions are arbitrary nested mappings of scalars,
// lists and mappings. This package gives them a closed value type so they survive a
// store round-trip with identical keys, list order and leaf types.
//
// Key constraints:
//   - NO float values - decimals travel as strings so precision is never lost
//   - Map keys serialise in RFC 8785 order (UTF-16 code units)
//   - Integers decode through json.Number, never float64
//
// All content hashes are domain separated: SHA256(domain + 0x00 + data).
package record
