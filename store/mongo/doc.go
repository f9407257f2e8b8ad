// Package mongo implements the cache repositories on MongoDB. List and
// detail records live in separate collections so a partial list upsert
// can never clobber detail-only fields, and every write is a $set merge
// upsert keyed by the item id.
package mongo
