package cache

import "strings"

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "toko"

// KeyCart returns the key holding the snapshot of a cart instance.
func KeyCart(prefix, instance string) string {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + ":cart:" + instance
}

// KeyCartLock returns the key guarding writers of a cart instance.
func KeyCartLock(prefix, instance string) string {
	return KeyCart(prefix, instance) + ":lock"
}
