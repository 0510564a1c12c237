package badgerfs

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so the driver uses prefixed keys to keep
// the two data types of a mount apart:
//
//	Data Type          Prefix   Key Format        Value Type
//	=========================================================
//	Attribute Record   "a:"     a:<relPath>       attrRecord (XDR)
//	Content Blob       "c:"     c:<relPath>       raw bytes
//
// Keys are the mount-relative path exactly as the core hands it over, so
// a range scan over "a:<dir>/" enumerates a directory's subtree and a
// rename is a prefix rewrite. Paths are unique within a mount, and one
// driver instance serves one mount, so no further namespacing is needed.

// attrKey returns the attribute-record key for a mount-relative path.
func attrKey(relPath string) []byte {
	return append([]byte("a:"), relPath...)
}

// contentKey returns the content-blob key for a mount-relative path.
func contentKey(relPath string) []byte {
	return append([]byte("c:"), relPath...)
}

// renamedKey rewrites a key under the from prefix into the to prefix,
// preserving the namespace byte and the suffix below the renamed path.
func renamedKey(key []byte, from, to string) []byte {
	// Layout: <ns>:<from></suffix...>
	ns := key[:2]
	suffix := key[2+len(from):]

	out := make([]byte, 0, len(ns)+len(to)+len(suffix))
	out = append(out, ns...)
	out = append(out, to...)
	out = append(out, suffix...)
	return out
}
