package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gqlbridge/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Frame
		wantErr error
	}{
		{
			name:  "start with id and payload",
			input: `{"type":"start","id":"1","payload":{"query":"subscription { tick }"}}`,
			want:  Frame{Type: TypeStart, ID: "1", Payload: []byte(`{"query":"subscription { tick }"}`)},
		},
		{
			name:  "connection_init without id",
			input: `{"type":"connection_init","payload":{"headers":{}}}`,
			want:  Frame{Type: TypeConnectionInit, Payload: []byte(`{"headers":{}}`)},
		},
		{
			name:  "bare keep-alive",
			input: `{"type":"ka"}`,
			want:  Frame{Type: TypeKeepAlive},
		},
		{
			name:    "not json",
			input:   `{{{`,
			wantErr: errors.ErrMalformedFrame,
		},
		{
			name:    "missing type",
			input:   `{"id":"1"}`,
			wantErr: errors.ErrMalformedFrame,
		},
		{
			name:    "unknown type",
			input:   `{"type":"telegram"}`,
			wantErr: errors.ErrUnknownFrameType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.input))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Type, got.Type)
			assert.Equal(t, tt.want.ID, got.ID)
			assert.JSONEq(t, orNull(tt.want.Payload), orNull(got.Payload))
		})
	}
}

func orNull(p []byte) string {
	if len(p) == 0 {
		return "null"
	}
	return string(p)
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	data, err := Frame{Type: TypeConnectionAck}.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"connection_ack"}`, string(data))
}

func TestIsOperation(t *testing.T) {
	operations := []FrameType{TypeStart, TypeStop, TypeSubscribe, TypeComplete}
	for _, ft := range operations {
		assert.True(t, Frame{Type: ft}.IsOperation(), "%s should be an operation", ft)
	}

	others := []FrameType{TypeConnectionInit, TypeConnectionAck, TypeData, TypeNext,
		TypeKeepAlive, TypePing, TypePong, TypeError, TypeConnectionError}
	for _, ft := range others {
		assert.False(t, Frame{Type: ft}.IsOperation(), "%s should not be an operation", ft)
	}
}

func TestIsKeepAlive(t *testing.T) {
	for _, ft := range []FrameType{TypeKeepAlive, TypePing, TypePong} {
		assert.True(t, Frame{Type: ft}.IsKeepAlive(), "%s", ft)
	}
	assert.False(t, Frame{Type: TypeData}.IsKeepAlive())
}

func TestDialectValid(t *testing.T) {
	assert.True(t, DialectLegacy.Valid())
	assert.True(t, DialectModern.Valid())
	assert.False(t, Dialect("graphql-http").Valid())
	assert.False(t, Dialect("").Valid())
}
