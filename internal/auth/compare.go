package auth

// SecureCompare reports whether a and b are equal without leaking, through
// timing, the position of the first differing byte or a length mismatch.
// Every byte position up to the longer length is inspected; there is no
// short-circuit. An empty candidate never matches, so absent credentials
// compare false even against a misconfigured empty secret.
//
// This is the only equality check permitted for secrets and signatures
// anywhere in this package.
func SecureCompare(a, b string) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var diff byte
	if len(a) != len(b) {
		diff = 1
	}
	for i := 0; i < n; i++ {
		var ca, cb byte
		if i < len(a) {
			ca = a[i]
		}
		if i < len(b) {
			cb = b[i]
		}
		diff |= ca ^ cb
	}
	return diff == 0 && len(a) > 0
}
