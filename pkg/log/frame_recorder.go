package log

// FrameRecorder is an io.Writer that keeps the first MaxFrameDataSize bytes
// written to it and counts the rest. Tee a reader into it to capture an
// incoming frame while it is decoded.
type FrameRecorder struct {
	data []byte
	size int
}

// Write records p. It never fails.
func (r *FrameRecorder) Write(p []byte) (int, error) {
	r.size += len(p)
	if room := MaxFrameDataSize - len(r.data); room > 0 {
		r.data = append(r.data, p[:min(room, len(p))]...)
	}
	return len(p), nil
}

// Len returns the number of bytes written so far.
func (r *FrameRecorder) Len() int {
	return r.size
}

// FrameEvent returns what was recorded.
func (r *FrameRecorder) FrameEvent() *FrameEvent {
	return &FrameEvent{
		Size:      r.size,
		Data:      append([]byte(nil), r.data...),
		Truncated: r.size > len(r.data),
	}
}

// Reset discards everything recorded.
func (r *FrameRecorder) Reset() {
	r.data = r.data[:0]
	r.size = 0
}
