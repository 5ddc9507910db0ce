package hub

// Layer pairs a client with the scope it captures against. The client is
// shared; the scope belongs to the layer.
type Layer struct {
	Client Client
	Scope  *Scope
}

// HasClient reports whether a client is bound on the layer.
func (l Layer) HasClient() bool {
	return l.Client != nil
}
