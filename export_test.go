package vimba

// SetConverterLookup replaces how r looks up converters, before any frame was
// delivered.
func (r *Recorder) SetConverterLookup(lookup func(PixelFormat) (Converter, error)) {
	r.converters.mu.Lock()
	defer r.converters.mu.Unlock()
	r.converters.lookup = lookup
}

// Emit sends df as the frame handler does.
func (r *Recorder) Emit(df DataFrame) bool {
	return r.emit(df)
}
