package xdr

import (
	"fmt"
	"io"

	"github.com/marmos91/dittofs/internal/protocol/nsm/types"
	"github.com/marmos91/dittofs/internal/protocol/xdr"
)

// ============================================================================
// NSM Request Decoding
// ============================================================================

// DecodeSMName decodes an sm_name argument (SM_STAT, SM_UNMON_ALL).
//
// XDR format:
//
//	struct sm_name {
//	    string mon_name<SM_MAXSTRLEN>;
//	};
func DecodeSMName(r io.Reader) (*types.SMName, error) {
	name, err := xdr.DecodeString(r)
	if err != nil {
		return nil, fmt.Errorf("decode mon_name: %w", err)
	}
	return &types.SMName{Name: name}, nil
}

// DecodeMyID decodes a my_id structure (callback RPC details).
//
// XDR format:
//
//	struct my_id {
//	    string my_name<SM_MAXSTRLEN>;
//	    int    my_prog;
//	    int    my_vers;
//	    int    my_proc;
//	};
func DecodeMyID(r io.Reader) (*types.MyID, error) {
	name, err := xdr.DecodeString(r)
	if err != nil {
		return nil, fmt.Errorf("decode my_name: %w", err)
	}
	prog, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode my_prog: %w", err)
	}
	vers, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode my_vers: %w", err)
	}
	proc, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode my_proc: %w", err)
	}
	return &types.MyID{MyName: name, MyProg: prog, MyVers: vers, MyProc: proc}, nil
}

// DecodeMonID decodes a mon_id structure (monitored host + callback info).
//
// XDR format:
//
//	struct mon_id {
//	    string mon_name<SM_MAXSTRLEN>;
//	    my_id  my_id;
//	};
func DecodeMonID(r io.Reader) (*types.MonID, error) {
	name, err := xdr.DecodeString(r)
	if err != nil {
		return nil, fmt.Errorf("decode mon_name: %w", err)
	}
	myID, err := DecodeMyID(r)
	if err != nil {
		return nil, err
	}
	return &types.MonID{MonName: name, MyID: *myID}, nil
}

// DecodeMon decodes a mon argument (SM_MON).
//
// XDR format:
//
//	struct mon {
//	    mon_id   mon_id;
//	    opaque   priv[16];
//	};
func DecodeMon(r io.Reader) (*types.Mon, error) {
	monID, err := DecodeMonID(r)
	if err != nil {
		return nil, err
	}

	var priv [16]byte
	if _, err := io.ReadFull(r, priv[:]); err != nil {
		return nil, fmt.Errorf("decode priv: %w", err)
	}

	return &types.Mon{MonID: *monID, Priv: priv}, nil
}

// ============================================================================
// NSM Response Decoding (outbound client calls)
// ============================================================================

// DecodeSMStatRes decodes an sm_stat_res result (SM_MON/SM_UNMON/SM_UNMON_ALL
// replies), the client-side counterpart of EncodeSMStatRes.
func DecodeSMStatRes(r io.Reader) (*types.SMStatRes, error) {
	result, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode res_stat: %w", err)
	}
	state, err := xdr.DecodeInt32(r)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &types.SMStatRes{Result: result, State: state}, nil
}

// DecodeSMStat decodes an sm_stat result (SM_STAT reply), the client-side
// counterpart of EncodeSMStat.
func DecodeSMStat(r io.Reader) (*types.SMStat, error) {
	state, err := xdr.DecodeInt32(r)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &types.SMStat{State: state}, nil
}

// DecodeStatChge decodes a stat_chge argument (SM_NOTIFY, peer-to-peer).
//
// XDR format:
//
//	struct stat_chge {
//	    string   mon_name<SM_MAXSTRLEN>;
//	    int      state;
//	};
func DecodeStatChge(r io.Reader) (*types.StatChge, error) {
	name, err := xdr.DecodeString(r)
	if err != nil {
		return nil, fmt.Errorf("decode mon_name: %w", err)
	}
	state, err := xdr.DecodeInt32(r)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &types.StatChge{MonName: name, State: state}, nil
}
