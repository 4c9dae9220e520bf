package mdp

// Frame-sequence helpers: pop the head frame off a sequence, and strip
// a leading client/worker return envelope. Implemented directly
// against []string, which is the frame representation this package
// uses end to end.

// popStr returns the first frame and the remaining frames.
func popStr(frames []string) (head string, rest []string) {
	if len(frames) == 0 {
		return "", frames
	}
	return frames[0], frames[1:]
}

// unwrap strips a leading return-address frame, plus a following empty
// delimiter frame if present, and returns the address and the
// remaining frames.
func unwrap(frames []string) (address string, rest []string) {
	address, rest = popStr(frames)
	if len(rest) > 0 && rest[0] == "" {
		_, rest = popStr(rest)
	}
	return address, rest
}

func stringsToBytes(in []string) [][]byte {
	out := make([][]byte, len(in))
	for i, s := range in {
		out[i] = []byte(s)
	}
	return out
}

func bytesToStrings(in [][]byte) []string {
	out := make([]string, len(in))
	for i, b := range in {
		out[i] = string(b)
	}
	return out
}

// isWildcard reports whether a service name is a wildcard pattern.
func isWildcard(name string) bool {
	return len(name) > 0 && name[len(name)-1] == '*'
}

// wildcardPrefix returns the literal prefix a wildcard service name
// matches against, i.e. name with its trailing "*" removed.
func wildcardPrefix(name string) string {
	if isWildcard(name) {
		return name[:len(name)-1]
	}
	return name
}

func isMMIService(name string) bool {
	return len(name) >= len(mmiNamespace) && name[:len(mmiNamespace)] == mmiNamespace
}
