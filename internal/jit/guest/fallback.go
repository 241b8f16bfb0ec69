package guest

// FallbackFn is the Go form of an interpreter fallback: the guest's
// opaque data value, the instruction's address, and its raw encoding.
type FallbackFn func(data uintptr, addr, raw uint32)

// fallbacks maps a fallback's native entry point back to its Go
// function, letting the interpreter backend run units that reference
// native entries without making native calls.
var fallbacks = map[uintptr]FallbackFn{}

// RegisterFallback records the Go function behind a native fallback
// entry point.
func RegisterFallback(entry uintptr, fn FallbackFn) {
	fallbacks[entry] = fn
}

// LookupFallback resolves a native fallback entry point to its Go
// function, nil if unknown.
func LookupFallback(entry uintptr) FallbackFn {
	return fallbacks[entry]
}
