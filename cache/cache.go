package cache

// Store is a keyed cache owned by whoever creates it. Reset empties it so
// tests can start from a known state.
type Store[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Len() int
	Reset()
}
