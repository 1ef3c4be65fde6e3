package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut  *ssm.GetParameterOutput
	getErr  error
	lastIn  *ssm.GetParameterInput
	callCnt int
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastIn = in
	f.callCnt++
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func valueOutput(v string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: strPtr(v)}}
}

func TestGetParameter_HappyPath_RequestsDecryption(t *testing.T) {
	api := &fakeAPI{getOut: valueOutput("sk-abc")}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /hot-mess-coach/openai-key ")
	require.NoError(t, err)
	require.Equal(t, "sk-abc", v)
	require.Equal(t, "/hot-mess-coach/openai-key", *api.lastIn.Name)
	require.True(t, *api.lastIn.WithDecryption)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: nil}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_ApiError(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	api := &fakeAPI{}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
	require.Zero(t, api.callCnt)
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}

// ---------------------------------------------------------------------------
// ResolveToken
// ---------------------------------------------------------------------------

type fakeGetter struct {
	val string
	err error
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	return f.val, f.err
}

func TestResolveToken(t *testing.T) {
	cases := []struct {
		name    string
		getter  Getter
		param   string
		want    string
		wantErr string
	}{
		{name: "bare token", getter: &fakeGetter{val: " sk-bare \n"}, param: "/k", want: "sk-bare"},
		{name: "json token", getter: &fakeGetter{val: `{"token":"sk-json"}`}, param: "/k", want: "sk-json"},
		{name: "json missing token", getter: &fakeGetter{val: `{"other":"value"}`}, param: "/k", wantErr: "empty"},
		{name: "malformed json", getter: &fakeGetter{val: `{"broken`}, param: "/k", wantErr: "unmarshal"},
		{name: "blank value", getter: &fakeGetter{val: "   "}, param: "/k", wantErr: "empty"},
		{name: "getter error", getter: &fakeGetter{err: errors.New("ssm unavailable")}, param: "/k", wantErr: "ssm unavailable"},
		{name: "nil getter", getter: nil, param: "/k", wantErr: "nil"},
		{name: "empty name", getter: &fakeGetter{val: "sk"}, param: " ", wantErr: "name is empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveToken(context.Background(), tc.getter, tc.param)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveToken_ThroughClient(t *testing.T) {
	client, err := New(&fakeAPI{getOut: valueOutput(`{"token":"sk-from-ssm"}`)})
	require.NoError(t, err)

	got, err := ResolveToken(context.Background(), client, "/hot-mess-coach/openai-key")
	require.NoError(t, err)
	require.Equal(t, "sk-from-ssm", got)
}
