package handlers

// HandlerResult carries an XDR-encoded NSM response body back to the
// transport layer, alongside the NSM-level status that produced it (for
// logging/metrics; the two are independent of RPC-level accept/reject
// status handled by the transport).
type HandlerResult struct {
	// Data is the XDR-encoded response body.
	Data []byte

	// NSMStatus is types.StatSucc or types.StatFail.
	NSMStatus uint32
}
