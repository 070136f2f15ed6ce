package bulk

const (
	DefaultMaxCount = 500
	DefaultMaxBytes = 5 * 1024 * 1024
)

// Chunk splits actions, in order, into consecutive chunks holding at most
// maxCount actions and at most maxBytes of estimated payload. An action larger
// than maxBytes on its own is emitted as a single-action chunk rather than
// dropped. Non-positive limits fall back to the defaults.
func Chunk(actions []Action, maxCount, maxBytes int) [][]Action {
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	var (
		chunks  [][]Action
		current []Action
		size    int
	)
	for _, action := range actions {
		actionSize := action.EstimatedSize()
		if len(current) > 0 && (len(current) >= maxCount || size+actionSize > maxBytes) {
			chunks = append(chunks, current)
			current = nil
			size = 0
		}
		current = append(current, action)
		size += actionSize
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
