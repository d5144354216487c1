package llm

import "sync"

// CredentialRotator hands out API keys round-robin to spread load across
// several accounts.
type CredentialRotator struct {
	mu   sync.Mutex
	keys []string
	next int
}

// NewCredentialRotator returns a rotator over the non-empty keys.
func NewCredentialRotator(keys ...string) *CredentialRotator {
	r := &CredentialRotator{}
	for _, k := range keys {
		if k != "" {
			r.keys = append(r.keys, k)
		}
	}
	return r
}

// Len returns the number of keys in rotation.
func (r *CredentialRotator) Len() int {
	return len(r.keys)
}

// Next returns the index and value of the next key. With no keys it returns
// -1 and an empty string.
func (r *CredentialRotator) Next() (int, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return -1, ""
	}
	i := r.next
	r.next = (r.next + 1) % len(r.keys)
	return i, r.keys[i]
}
