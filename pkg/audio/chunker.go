package audio

// Chunker re-cuts a PCM byte stream into fixed-size chunks. Bytes that do
// not yet fill a chunk are kept until the next Write.
//
// A Chunker is not safe for concurrent use.
type Chunker struct {
	size int
	buf  []byte
}

// NewChunker returns a Chunker emitting chunks of samples 16-bit samples.
func NewChunker(samples int) *Chunker {
	return &Chunker{size: max(samples, 1) * SampleWidth}
}

// Write appends pcm and returns every chunk that is now complete. Each
// returned chunk is a fresh slice owned by the caller.
func (c *Chunker) Write(pcm []byte) [][]byte {
	c.buf = append(c.buf, pcm...)

	var chunks [][]byte
	off := 0
	for len(c.buf)-off >= c.size {
		chunk := make([]byte, c.size)
		copy(chunk, c.buf[off:off+c.size])
		chunks = append(chunks, chunk)
		off += c.size
	}
	n := copy(c.buf, c.buf[off:])
	c.buf = c.buf[:n]
	return chunks
}

// Pending returns the number of buffered bytes not yet emitted.
func (c *Chunker) Pending() int { return len(c.buf) }
