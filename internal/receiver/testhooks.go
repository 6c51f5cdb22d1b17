package receiver

// SetRequestIDsForTests makes r assign ids from fn instead of random UUIDs.
func (r *Receiver) SetRequestIDsForTests(fn func() string) {
	r.newID = fn
}
