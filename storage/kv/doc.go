// Package kv provides an interface for implementing
// transactional kv drivers that back actor storage.
//
// A kv plugin is a factory for root store instances. A root store
// contains zero or more named stores. Each store operates independently
// from the others: there are no ordering or consistency guarantees for
// transactions spawned from different stores. Within a store transactions
// are strictly serializable.
//
//  - Root Store
//    - Store A
//      - 0: <4096 bytes>
//      - 1: <4096 bytes>
//    - Store B
//
// Multi-key writes are expressed as a single writable transaction.
// Drivers must guarantee that either every update in the transaction
// lands or none of them do; consumers rely on this to keep a fixed
// key set whole.
package kv
