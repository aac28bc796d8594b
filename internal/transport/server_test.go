package transport

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanmcp-labs/memoryd/internal/errs"
)

type fakeDispatcher struct {
	onDispatch func(method string, params map[string]any) (any, error)
}

func (f *fakeDispatcher) Dispatch(_ context.Context, method string, params map[string]any) (any, error) {
	return f.onDispatch(method, params)
}

func decodeResponses(t *testing.T, out *strings.Builder) []Response {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(out.String()))
	var responses []Response
	for dec.More() {
		var r Response
		require.NoError(t, dec.Decode(&r))
		responses = append(responses, r)
	}
	return responses
}

func TestServer_Run_DispatchesEachLineAndWritesResponse(t *testing.T) {
	d := &fakeDispatcher{onDispatch: func(method string, _ map[string]any) (any, error) {
		return map[string]string{"echo": method}, nil
	}}
	s := NewServer(d, nil)

	in := strings.NewReader(`{"jsonrpc":"2.0","method":"ping","id":"1"}` + "\n")
	var out strings.Builder

	err := s.Run(context.Background(), in, &out)
	require.NoError(t, err)

	responses := decodeResponses(t, &out)
	require.Len(t, responses, 1)
	assert.Equal(t, "1", responses[0].ID)
	assert.Nil(t, responses[0].Error)
}

func TestServer_Run_MalformedLineReturnsParseError(t *testing.T) {
	d := &fakeDispatcher{onDispatch: func(string, map[string]any) (any, error) { return nil, nil }}
	s := NewServer(d, nil)

	in := strings.NewReader("not json\n")
	var out strings.Builder
	require.NoError(t, s.Run(context.Background(), in, &out))

	responses := decodeResponses(t, &out)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrCodeParseError, responses[0].Error.Code)
}

func TestServer_Run_MissingMethodIsInvalidRequest(t *testing.T) {
	d := &fakeDispatcher{onDispatch: func(string, map[string]any) (any, error) { return nil, nil }}
	s := NewServer(d, nil)

	in := strings.NewReader(`{"jsonrpc":"2.0","id":"1"}` + "\n")
	var out strings.Builder
	require.NoError(t, s.Run(context.Background(), in, &out))

	responses := decodeResponses(t, &out)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrCodeInvalidRequest, responses[0].Error.Code)
}

func TestServer_Run_DomainErrorCarriesClassifiedCode(t *testing.T) {
	d := &fakeDispatcher{onDispatch: func(string, map[string]any) (any, error) {
		return nil, errs.New(errs.NotFound, "memory not found", nil)
	}}
	s := NewServer(d, nil)

	in := strings.NewReader(`{"jsonrpc":"2.0","method":"get_memory","params":{"id":"x"},"id":"7"}` + "\n")
	var out strings.Builder
	require.NoError(t, s.Run(context.Background(), in, &out))

	responses := decodeResponses(t, &out)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrCodeDomain, responses[0].Error.Code)
	data := responses[0].Error.Data.(map[string]any)
	assert.Equal(t, string(errs.NotFound), data["code"])
}

func TestServer_Run_InvalidParamsShapeRejected(t *testing.T) {
	d := &fakeDispatcher{onDispatch: func(string, map[string]any) (any, error) { return nil, nil }}
	s := NewServer(d, nil)

	in := strings.NewReader(`{"jsonrpc":"2.0","method":"search","params":"not-an-object","id":"1"}` + "\n")
	var out strings.Builder
	require.NoError(t, s.Run(context.Background(), in, &out))

	responses := decodeResponses(t, &out)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrCodeInvalidParams, responses[0].Error.Code)
}

func TestServer_Run_ProcessesMultipleLinesInOrder(t *testing.T) {
	var seen []string
	d := &fakeDispatcher{onDispatch: func(method string, _ map[string]any) (any, error) {
		seen = append(seen, method)
		return nil, nil
	}}
	s := NewServer(d, nil)

	in := strings.NewReader(
		`{"jsonrpc":"2.0","method":"a","id":"1"}` + "\n" +
			`{"jsonrpc":"2.0","method":"b","id":"2"}` + "\n",
	)
	var out strings.Builder
	require.NoError(t, s.Run(context.Background(), in, &out))

	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestServer_Run_StopsWhenContextCancelled(t *testing.T) {
	d := &fakeDispatcher{onDispatch: func(string, map[string]any) (any, error) { return nil, nil }}
	s := NewServer(d, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := strings.NewReader(`{"jsonrpc":"2.0","method":"a","id":"1"}` + "\n")
	var out strings.Builder
	err := s.Run(ctx, in, &out)
	assert.Error(t, err)
}
