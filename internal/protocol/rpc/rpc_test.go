package rpc

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validUnixAuthCredentials() *UnixAuth {
	return &UnixAuth{
		Stamp:       uint32(time.Now().Unix()),
		MachineName: "testhost",
		UID:         1000,
		GID:         1000,
		GIDs:        []uint32{4, 24, 27, 30},
	}
}

func encodeUnixAuth(auth *UnixAuth) []byte {
	buf := new(bytes.Buffer)

	_ = binary.Write(buf, binary.BigEndian, auth.Stamp)

	nameLen := uint32(len(auth.MachineName))
	_ = binary.Write(buf, binary.BigEndian, nameLen)
	buf.WriteString(auth.MachineName)
	padding := (4 - (nameLen % 4)) % 4
	for i := uint32(0); i < padding; i++ {
		buf.WriteByte(0)
	}

	_ = binary.Write(buf, binary.BigEndian, auth.UID)
	_ = binary.Write(buf, binary.BigEndian, auth.GID)

	_ = binary.Write(buf, binary.BigEndian, uint32(len(auth.GIDs)))
	for _, gid := range auth.GIDs {
		_ = binary.Write(buf, binary.BigEndian, gid)
	}

	return buf.Bytes()
}

func TestParseUnixAuth(t *testing.T) {
	t.Run("ParsesValidCredentials", func(t *testing.T) {
		original := validUnixAuthCredentials()
		body := encodeUnixAuth(original)

		parsed, err := ParseUnixAuth(body)
		require.NoError(t, err)
		assert.Equal(t, original.Stamp, parsed.Stamp)
		assert.Equal(t, original.MachineName, parsed.MachineName)
		assert.Equal(t, original.UID, parsed.UID)
		assert.Equal(t, original.GID, parsed.GID)
		assert.Equal(t, original.GIDs, parsed.GIDs)
	})

	t.Run("ParsesRootCredentials", func(t *testing.T) {
		auth := &UnixAuth{Stamp: uint32(time.Now().Unix()), MachineName: "testhost", UID: 0, GID: 0, GIDs: []uint32{}}
		body := encodeUnixAuth(auth)

		parsed, err := ParseUnixAuth(body)
		require.NoError(t, err)
		assert.Equal(t, uint32(0), parsed.UID)
		assert.Equal(t, uint32(0), parsed.GID)
		assert.Empty(t, parsed.GIDs)
	})

	t.Run("ParsesWithMaximumGroups", func(t *testing.T) {
		gids := make([]uint32, 16)
		for i := range gids {
			gids[i] = uint32(i + 1000)
		}
		auth := &UnixAuth{Stamp: 12345, MachineName: "testhost", UID: 1000, GID: 1000, GIDs: gids}
		body := encodeUnixAuth(auth)

		parsed, err := ParseUnixAuth(body)
		require.NoError(t, err)
		assert.Len(t, parsed.GIDs, 16)
		assert.Equal(t, gids, parsed.GIDs)
	})

	t.Run("RejectsExcessiveGroups", func(t *testing.T) {
		buf := new(bytes.Buffer)
		_ = binary.Write(buf, binary.BigEndian, uint32(12345))
		_ = binary.Write(buf, binary.BigEndian, uint32(8))
		_, _ = buf.WriteString("testhost")
		_ = binary.Write(buf, binary.BigEndian, uint32(1000))
		_ = binary.Write(buf, binary.BigEndian, uint32(1000))
		_ = binary.Write(buf, binary.BigEndian, uint32(17))

		_, err := ParseUnixAuth(buf.Bytes())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too many gids")
	})

	t.Run("RejectsLongMachineName", func(t *testing.T) {
		buf := new(bytes.Buffer)
		_ = binary.Write(buf, binary.BigEndian, uint32(12345))
		_ = binary.Write(buf, binary.BigEndian, uint32(256))

		_, err := ParseUnixAuth(buf.Bytes())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "machine name too long")
	})

	t.Run("RejectsEmptyBody", func(t *testing.T) {
		_, err := ParseUnixAuth([]byte{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("HandlesEmptyMachineName", func(t *testing.T) {
		auth := &UnixAuth{Stamp: 12345, MachineName: "", UID: 1000, GID: 1000, GIDs: []uint32{}}
		body := encodeUnixAuth(auth)

		parsed, err := ParseUnixAuth(body)
		require.NoError(t, err)
		assert.Equal(t, "", parsed.MachineName)
	})
}

func TestUnixAuthString(t *testing.T) {
	t.Run("FormatsCorrectly", func(t *testing.T) {
		auth := &UnixAuth{Stamp: 12345, MachineName: "testhost", UID: 1000, GID: 1000, GIDs: []uint32{4, 24, 27, 30}}

		str := auth.String()
		assert.Contains(t, str, "testhost")
		assert.Contains(t, str, "1000")
		assert.Contains(t, str, "[4 24 27 30]")
	})

	t.Run("FormatsEmptyGroups", func(t *testing.T) {
		auth := &UnixAuth{Stamp: 12345, MachineName: "testhost", UID: 1000, GID: 1000, GIDs: []uint32{}}

		str := auth.String()
		assert.Contains(t, str, "testhost")
		assert.Contains(t, str, "[]")
	})
}

func TestAuthFlavors(t *testing.T) {
	t.Run("FlavorsAreUnique", func(t *testing.T) {
		flavors := []uint32{AuthNull, AuthUnix, AuthShort, AuthDES}
		seen := make(map[uint32]bool)
		for _, flavor := range flavors {
			assert.False(t, seen[flavor], "flavor %d is not unique", flavor)
			seen[flavor] = true
		}
	})
}

func buildCallBytes(t *testing.T, xid, program, version, procedure uint32, credFlavor, credBody, verfFlavor, verfBody uint32) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, xid)
	_ = binary.Write(buf, binary.BigEndian, RPCCall)
	_ = binary.Write(buf, binary.BigEndian, uint32(2))
	_ = binary.Write(buf, binary.BigEndian, program)
	_ = binary.Write(buf, binary.BigEndian, version)
	_ = binary.Write(buf, binary.BigEndian, procedure)
	_ = binary.Write(buf, binary.BigEndian, credFlavor)
	_ = binary.Write(buf, binary.BigEndian, credBody) // zero-length opaque
	_ = binary.Write(buf, binary.BigEndian, verfFlavor)
	_ = binary.Write(buf, binary.BigEndian, verfBody)
	return buf.Bytes()
}

func TestReadCall(t *testing.T) {
	t.Run("ParsesCallHeader", func(t *testing.T) {
		data := buildCallBytes(t, 0xCAFEBABE, 100021, 4, 2, AuthNull, 0, AuthNull, 0)
		call, err := ReadCall(data)
		require.NoError(t, err)
		assert.Equal(t, uint32(0xCAFEBABE), call.XID)
		assert.Equal(t, uint32(100021), call.Program)
		assert.Equal(t, uint32(4), call.Version)
		assert.Equal(t, uint32(2), call.Procedure)
	})

	t.Run("AppendedArgsSurviveReadData", func(t *testing.T) {
		data := buildCallBytes(t, 1, 100021, 4, 0, AuthNull, 0, AuthNull, 0)
		data = append(data, []byte{0xDE, 0xAD, 0xBE, 0xEF}...)

		call, err := ReadCall(data)
		require.NoError(t, err)

		argData, err := ReadData(data, call)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, argData)
	})

	t.Run("RejectsReplyMessage", func(t *testing.T) {
		buf := new(bytes.Buffer)
		_ = binary.Write(buf, binary.BigEndian, uint32(1))
		_ = binary.Write(buf, binary.BigEndian, RPCReply)
		_, err := ReadCall(buf.Bytes())
		require.Error(t, err)
	})
}

func TestMakeProgMismatchReply(t *testing.T) {
	t.Run("GeneratesValidReply", func(t *testing.T) {
		reply, err := MakeProgMismatchReply(0x12345678, 3, 3)
		require.NoError(t, err)
		require.NotNil(t, reply)

		assert.GreaterOrEqual(t, len(reply), 36)

		fragHeader := binary.BigEndian.Uint32(reply[0:4])
		assert.True(t, (fragHeader&0x80000000) != 0)
		fragLen := fragHeader & 0x7FFFFFFF
		assert.Equal(t, uint32(len(reply)-4), fragLen)

		replyXID := binary.BigEndian.Uint32(reply[4:8])
		assert.Equal(t, uint32(0x12345678), replyXID)

		msgType := binary.BigEndian.Uint32(reply[8:12])
		assert.Equal(t, RPCReply, msgType)

		replyState := binary.BigEndian.Uint32(reply[12:16])
		assert.Equal(t, RPCMsgAccepted, replyState)
	})

	t.Run("EncodesVersionRange", func(t *testing.T) {
		reply, err := MakeProgMismatchReply(0xABCD1234, 2, 4)
		require.NoError(t, err)

		replyLen := len(reply)
		low := binary.BigEndian.Uint32(reply[replyLen-8 : replyLen-4])
		high := binary.BigEndian.Uint32(reply[replyLen-4:])
		assert.Equal(t, uint32(2), low)
		assert.Equal(t, uint32(4), high)
	})

	t.Run("RejectsInvalidVersionRange", func(t *testing.T) {
		reply, err := MakeProgMismatchReply(0x12345678, 5, 3)
		require.Error(t, err)
		assert.Nil(t, reply)
		assert.Contains(t, err.Error(), "low (5) > high (3)")
	})

	t.Run("ContainsProgMismatchStatus", func(t *testing.T) {
		reply, err := MakeProgMismatchReply(0x1234, 3, 3)
		require.NoError(t, err)

		acceptStat := binary.BigEndian.Uint32(reply[24:28])
		assert.Equal(t, RPCProgMismatch, acceptStat)
	})
}
