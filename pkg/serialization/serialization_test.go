package serialization

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string  `json:"name"`
	Note  *string `json:"note"`
	Count int     `json:"count"`
	Inner *struct {
		Tag *string `json:"tag"`
	} `json:"inner,omitempty"`
}

func TestSerialize_KeepsNullsByDefault(t *testing.T) {
	b, err := NewJSON().Serialize(sample{Name: "root"}, Options{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"root","note":null,"count":0}`, string(b))
}

func TestSerialize_IgnoreNullValues(t *testing.T) {
	v := sample{Name: "root", Count: 12345678901}
	v.Inner = &struct {
		Tag *string `json:"tag"`
	}{}

	b, err := NewJSON().Serialize(v, Options{IgnoreNullValues: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"root","count":12345678901,"inner":{}}`, string(b))
}

func TestSerialize_FieldOrderPreserved(t *testing.T) {
	b, err := NewJSON().Serialize(struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{Username: "root"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, `{"username":"root","password":""}`, string(b))
}

func TestSerialize_Unsupported(t *testing.T) {
	_, err := NewJSON().Serialize(make(chan int), Options{})
	require.Error(t, err)
}

// ─── Deserialize ─────────────────────────────────────────────────────────────

func TestDeserialize_OK(t *testing.T) {
	var out sample
	require.NoError(t, NewJSON().Deserialize(strings.NewReader(`{"name":"x","count":2}`), &out))
	assert.Equal(t, "x", out.Name)
	assert.Equal(t, 2, out.Count)
}

func TestDeserialize_InvalidJSON(t *testing.T) {
	var out sample
	require.Error(t, NewJSON().Deserialize(strings.NewReader(`{not json`), &out))
}

func TestDeserialize_Empty(t *testing.T) {
	var out sample
	err := NewJSON().Deserialize(strings.NewReader(``), &out)
	require.ErrorIs(t, err, io.EOF)
}

func TestDeserialize_TrailingData(t *testing.T) {
	inputs := []string{
		`{"name":"a"}{"name":"b"}`,
		`{"name":"a"}]`,
		`{"name":"a"}}`,
		`{"name":"a"} x`,
		`{"name":"a"},`,
	}
	for _, in := range inputs {
		var out sample
		err := NewJSON().Deserialize(strings.NewReader(in), &out)
		require.Error(t, err, "input %q", in)
		assert.Contains(t, err.Error(), "unexpected data", "input %q", in)
	}
}

func TestDeserialize_TrailingWhitespace(t *testing.T) {
	var out sample
	require.NoError(t, NewJSON().Deserialize(strings.NewReader("{\"name\":\"a\"}\n  \t"), &out))
	assert.Equal(t, "a", out.Name)
}

func TestDecodeError_Unwrap(t *testing.T) {
	cause := errors.New("bad")
	err := &DecodeError{Target: "TokenResponse", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "decode TokenResponse: bad", err.Error())
}
