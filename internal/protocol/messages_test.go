package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Inbound decoding
// ---------------------------------------------------------------------------

func TestParseClientMessage_Chat(t *testing.T) {
	req := require.New(t)

	in := ParseClientMessage([]byte(`{"type":"chat","username":"alice","text":"hi"}`))

	req.Equal(KindChat, in.Kind)
	req.Equal(TypeChat, in.Type)
	req.Equal("alice", in.Chat.Username)
	req.Equal("hi", in.Chat.Text)
	req.NoError(in.Err)
}

func TestParseClientMessage_OpaqueStrings(t *testing.T) {
	req := require.New(t)
	long := make([]byte, 20000)
	for i := range long {
		long[i] = 'x'
	}

	raw, err := json.Marshal(map[string]string{"type": "chat", "username": "<b>bob</b>", "text": string(long)})
	req.NoError(err)

	in := ParseClientMessage(raw)
	req.Equal(KindChat, in.Kind)
	req.Equal("<b>bob</b>", in.Chat.Username)
	req.Len(in.Chat.Text, 20000)
}

func TestParseClientMessage_IgnoredTypes(t *testing.T) {
	for _, input := range []string{
		`{"type":"typing","username":"alice"}`,
		`{"type":"ping"}`,
		`{"type":"error","message":"spoofed"}`,
	} {
		in := ParseClientMessage([]byte(input))
		require.Equal(t, KindIgnored, in.Kind, input)
		require.NoError(t, in.Err, input)
	}
}

func TestParseClientMessage_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":        `hello`,
		"truncated":       `{"type":"chat","username":"a"`,
		"missing type":    `{"username":"a","text":"b"}`,
		"empty type":      `{"type":"","text":"b"}`,
		"numeric type":    `{"type":7}`,
		"json array":      `[1,2,3]`,
		"empty username":  `{"type":"chat","username":"","text":"hi"}`,
		"missing text":    `{"type":"chat","username":"alice"}`,
		"numeric text":    `{"type":"chat","username":"alice","text":42}`,
		"object username": `{"type":"chat","username":{"n":1},"text":"hi"}`,
	}
	for name, input := range cases {
		in := ParseClientMessage([]byte(input))
		require.Equal(t, KindMalformed, in.Kind, name)
		require.Error(t, in.Err, name)
	}
}

func TestParseClientMessage_EmptyFieldErrors(t *testing.T) {
	in := ParseClientMessage([]byte(`{"type":"chat","username":"","text":"hi"}`))
	require.ErrorIs(t, in.Err, ErrEmptyUsername)

	in = ParseClientMessage([]byte(`{"type":"chat","username":"a","text":""}`))
	require.ErrorIs(t, in.Err, ErrEmptyText)

	in = ParseClientMessage([]byte(`{"text":""}`))
	require.ErrorIs(t, in.Err, ErrMissingType)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "chat", KindChat.String())
	require.Equal(t, "ignored", KindIgnored.String())
	require.Equal(t, "malformed", KindMalformed.String())
}

// ---------------------------------------------------------------------------
// Outbound encoding
// ---------------------------------------------------------------------------

func TestNewServerMessage_Chat(t *testing.T) {
	req := require.New(t)
	ts := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	data, err := NewServerMessage(TypeChat, ServerChatMsg{ID: 1, Username: "alice", Text: "hi", Timestamp: ts})
	req.NoError(err)

	var m map[string]interface{}
	req.NoError(json.Unmarshal(data, &m))
	req.Equal("chat", m["type"])
	req.Equal(float64(1), m["id"])
	req.Equal("alice", m["username"])
	req.Equal("hi", m["text"])
	req.Equal("2026-10-15T12:00:00Z", m["timestamp"])
	req.Len(m, 5)
}

func TestNewServerMessage_Error(t *testing.T) {
	req := require.New(t)

	data, err := NewServerMessage(TypeError, ErrorMsg{Message: BannedNotice})
	req.NoError(err)
	req.JSONEq(`{"type":"error","message":"You are banned."}`, string(data))
}

func TestNewServerMessage_TypeIsForced(t *testing.T) {
	data, err := NewServerMessage(TypeError, ErrorMsg{Type: "chat", Message: "x"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"error","message":"x"}`, string(data))
}

func TestNewServerMessage_UnsupportedPayload(t *testing.T) {
	_, err := NewServerMessage(TypeChat, map[string]string{"a": "b"})
	require.Error(t, err)
}
