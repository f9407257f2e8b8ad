// Package covercache caches cover image bytes in an embedded key-value
// store with a TTL, so repeated catalog views do not hammer the image
// CDN. Keys are the image URLs; values carry the content type and a
// fetch stamp alongside the bytes.
package covercache
