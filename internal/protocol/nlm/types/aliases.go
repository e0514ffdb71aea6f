package types

import "github.com/marmos91/dittofs/internal/protocol/nlm"

// These aliases let callers that import this status/constants package also
// refer to the wire-format structs defined alongside the XDR codec in
// internal/protocol/nlm, without a second import.
type (
	NLM4Lock        = nlm.NLM4Lock
	NLM4Holder      = nlm.NLM4Holder
	NLM4LockArgs    = nlm.NLM4LockArgs
	NLM4UnlockArgs  = nlm.NLM4UnlockArgs
	NLM4TestArgs    = nlm.NLM4TestArgs
	NLM4CancelArgs  = nlm.NLM4CancelArgs
	NLM4GrantedArgs = nlm.NLM4GrantedArgs
	NLM4FreeAllArgs = nlm.NLM4FreeAllArgs
	NLM4Res         = nlm.NLM4Res
	NLM4TestRes     = nlm.NLM4TestRes
	NLM4ShareArgs   = nlm.NLM4ShareArgs
	NLM4ShareRes    = nlm.NLM4ShareRes
)

const (
	FSH4ModeRead      = nlm.FSH4ModeRead
	FSH4ModeWrite     = nlm.FSH4ModeWrite
	FSH4ModeReadWrite = nlm.FSH4ModeReadWrite

	FSH4DenyNone  = nlm.FSH4DenyNone
	FSH4DenyRead  = nlm.FSH4DenyRead
	FSH4DenyWrite = nlm.FSH4DenyWrite
	FSH4DenyBoth  = nlm.FSH4DenyBoth

	LMMaxStrLen  = nlm.LMMaxStrLen
	MaxOpaqueLen = nlm.MaxOpaqueLen
)
