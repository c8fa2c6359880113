package audio

// Mixer combines the chunks gathered during one merge cycle into a single
// chunk of canonical length.
//
// chunks holds whatever arrived in time; expected is the number of streams
// that should have contributed. Streams missing from chunks are treated as
// silence. Implementations must always return exactly one canonical chunk,
// even when chunks is empty.
//
// Implementations must be safe for concurrent use.
type Mixer interface {
	Mix(chunks [][]byte, expected int) []byte
}
