package flatshelf

import "strings"

// Sep separates components of a flat key. Components must not contain it.
const Sep = "."

// JoinKey builds a flat key out of a key chain. It does not validate the
// components; see ValidateComponent.
func JoinKey(chain ...string) string {
	return strings.Join(chain, Sep)
}

// SplitKey breaks a flat key into its key chain. An empty key yields an empty
// chain.
func SplitKey(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, Sep)
}

// SplitLast splits key on the last separator. If there is none, prefix is
// empty and the whole key is the leaf.
func SplitLast(key string) (prefix, leaf string) {
	i := strings.LastIndex(key, Sep)
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+len(Sep):]
}

// ValidateComponent returns ErrInvalidKeyComponent if c is empty or contains Sep.
func ValidateComponent(c string) error {
	if c == "" {
		return ErrInvalidKeyComponent
	}
	if strings.Contains(c, Sep) {
		return ErrInvalidKeyComponent
	}
	return nil
}

// parseKey splits a caller-supplied key into a validated chain.
func parseKey(op, key string) ([]string, error) {
	chain := SplitKey(key)
	if len(chain) == 0 {
		return nil, keyErrf(op, key, ErrInvalidKeyComponent, "empty key")
	}
	for _, c := range chain {
		if err := ValidateComponent(c); err != nil {
			return nil, keyErrf(op, key, err, "empty component")
		}
	}
	return chain, nil
}

// appendChain returns base+more without aliasing base's backing array.
func appendChain(base []string, more ...string) []string {
	out := make([]string, 0, len(base)+len(more))
	out = append(out, base...)
	return append(out, more...)
}
