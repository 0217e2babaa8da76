package interceptors

// Requirement is what a method demands of its caller.
type Requirement struct {
	// Public methods need no token.
	Public bool
	// SkipSession methods accept a valid token without an active session, e.g. CreateSession.
	SkipSession bool
	// Permission, when set, is checked by the gate against the target department.
	Permission string
}

// Routes maps gRPC full method names to their requirements. Every registered method must
// have an entry; the gate refuses methods it does not know.
type Routes map[string]Requirement

func (r Routes) Lookup(fullMethod string) (Requirement, bool) {
	req, ok := r[fullMethod]
	return req, ok
}

// Public returns the set of methods that need no token.
func (r Routes) Public() map[string]bool {
	out := make(map[string]bool)
	for m, req := range r {
		if req.Public {
			out[m] = true
		}
	}
	return out
}
