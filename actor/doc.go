// Package actor implements a key-value actor: a long-lived unit of
// state addressed by a stable identity that owns one kv store and
// serializes every request made against it.
//
// Requests enter through KeyValueActor.Fetch. Fetch never touches the
// store itself. It places the request in the actor's mailbox and waits
// for the actor's single goroutine to process it, so no two requests
// against one identity ever run at the same time, however many callers
// there are. The mailbox is unbounded; callers that pile up behind a slow
// store simply wait longer, which is the behavior churn tests measure.
//
// The store holds either no keys or exactly KeyCount keys of ValueSize
// bytes each. "/init" writes all of them in one kv transaction, so a
// failed init leaves the store as it was.
//
// A Directory maps identities to actors, creating each actor the first
// time its identity is resolved.
package actor
