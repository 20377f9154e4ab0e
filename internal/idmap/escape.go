package idmap

import "strings"

const upperHex = "0123456789ABCDEF"

// EscapeName percent-escapes a final path segment.
//
// Every byte outside [A-Za-z0-9-_.~] becomes %XX. Space is %20 and '+' is
// %2B, so decoding never has to guess; ':' is %3A so a name can not be taken
// for a scheme. A leading '.' is escaped too, which keeps the dot-prefixed
// sentinels for the reserved names unambiguous.
func EscapeName(name string) string {
	switch name {
	case ReservedNew:
		return sentinelNew
	case ReservedOld:
		return sentinelOld
	}

	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if unreserved(ch) && !(i == 0 && ch == '.') {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[ch>>4])
		b.WriteByte(upperHex[ch&0x0f])
	}
	return b.String()
}

// UnescapeName reverses EscapeName
func UnescapeName(escaped string) (string, error) {
	switch escaped {
	case sentinelNew:
		return ReservedNew, nil
	case sentinelOld:
		return ReservedOld, nil
	case "":
		return "", invalid(escaped, "empty name")
	}
	if escaped[0] == '.' {
		return "", invalid(escaped, "unescaped leading dot")
	}
	if strings.IndexByte(escaped, '%') < 0 {
		return escaped, nil
	}

	var b strings.Builder
	b.Grow(len(escaped))
	for i := 0; i < len(escaped); i++ {
		ch := escaped[i]
		if ch != '%' {
			b.WriteByte(ch)
			continue
		}
		if i+2 >= len(escaped) {
			return "", invalid(escaped, "truncated escape sequence")
		}
		hi, ok1 := unhex(escaped[i+1])
		lo, ok2 := unhex(escaped[i+2])
		if !ok1 || !ok2 {
			return "", invalid(escaped, "malformed escape sequence")
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func unreserved(ch byte) bool {
	switch {
	case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9':
		return true
	case ch == '-', ch == '_', ch == '.', ch == '~':
		return true
	}
	return false
}

func unhex(ch byte) (byte, bool) {
	switch {
	case '0' <= ch && ch <= '9':
		return ch - '0', true
	case 'a' <= ch && ch <= 'f':
		return ch - 'a' + 10, true
	case 'A' <= ch && ch <= 'F':
		return ch - 'A' + 10, true
	}
	return 0, false
}
