package s4

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/cop-agent/internal/domain/manifest"
	errs "github.com/target/cop-agent/internal/errors"
)

type fakeSTS struct {
	got *sts.AssumeRoleWithWebIdentityInput
	err error
	out *sts.AssumeRoleWithWebIdentityOutput
}

func (f *fakeSTS) AssumeRoleWithWebIdentity(_ context.Context, in *sts.AssumeRoleWithWebIdentityInput, _ ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeS3 struct {
	got   *s3.GetObjectInput
	creds aws.Credentials
	body  string
	err   error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(f.body))}, nil
}

func stsOK() *fakeSTS {
	return &fakeSTS{out: &sts.AssumeRoleWithWebIdentityOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     aws.String("AKIA"),
			SecretAccessKey: aws.String("secret"),
			SessionToken:    aws.String("session"),
		},
	}}
}

func newTestFetcher(t *testing.T, stsClient *fakeSTS, s3Client *fakeS3) *Fetcher {
	t.Helper()
	now := time.UnixMilli(1740830400000)
	return NewFetcherWithClients(stsClient, func(p aws.CredentialsProvider) S3API {
		creds, err := p.Retrieve(context.Background())
		require.NoError(t, err)
		s3Client.creds = creds
		return s3Client
	}, Options{Now: func() time.Time { return now }})
}

const sampleManifest = `{
  "documentControl": {"manifestId": "7c1e", "classification": "SECRET", "caveats": ["NOFORN"]},
  "vehicle": {"registration": "N123AB", "operator": "", "platform": {"designation": "MQ-9", "name": "Reaper"}},
  "mission": {"missionId": "M-1", "timeline": {"takeoff": "2025-03-01T10:00:00Z"}},
  "intelligence": {"collectionDiscipline": ["SIGINT"], "targetDeck": [{"id": "T1"}]},
  "extra": {"kept": true}
}`

func TestFetchManifest(t *testing.T) {
	stsClient := stsOK()
	s3Client := &fakeS3{body: sampleManifest}
	f := newTestFetcher(t, stsClient, s3Client)

	m, err := f.FetchManifest(context.Background(), "jwt-token", "s3://manifests/vehicles/v1.json")
	require.NoError(t, err)

	assert.Equal(t, "jwt-token", aws.ToString(stsClient.got.WebIdentityToken))
	assert.Equal(t, "cop-ui-session-1740830400000", aws.ToString(stsClient.got.RoleSessionName))
	assert.Equal(t, int32(3600), aws.ToInt32(stsClient.got.DurationSeconds))
	assert.Equal(t, DefaultRoleARN, aws.ToString(stsClient.got.RoleArn))

	assert.Equal(t, "manifests", aws.ToString(s3Client.got.Bucket))
	assert.Equal(t, "vehicles/v1.json", aws.ToString(s3Client.got.Key))
	assert.Equal(t, "AKIA", s3Client.creds.AccessKeyID)
	assert.Equal(t, "session", s3Client.creds.SessionToken)

	assert.Equal(t, "SECRET", m.DocumentControl.Classification)
	assert.Equal(t, []string{"NOFORN"}, m.DocumentControl.Caveats)
	assert.Equal(t, "MQ-9", m.Vehicle.Platform.Designation)
	require.NotNil(t, m.Summary.Registration)
	assert.Equal(t, "N123AB", *m.Summary.Registration)
	assert.Nil(t, m.Summary.Operator, "empty operator is reported as absent")
	assert.Contains(t, m.Raw, "extra")
}

func TestFetchManifest_InvalidURI(t *testing.T) {
	stsClient := stsOK()
	f := newTestFetcher(t, stsClient, &fakeS3{})

	_, err := f.FetchManifest(context.Background(), "jwt", "https://nope")
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))
	assert.Nil(t, stsClient.got, "no STS call for a bad URI")
}

func TestFetchManifest_AccessDenied(t *testing.T) {
	tests := []struct {
		name   string
		sts    *fakeSTS
		s3Err  error
		denied bool
	}{
		{
			name:   "s3 access denied",
			sts:    stsOK(),
			s3Err:  &smithy.GenericAPIError{Code: "AccessDenied", Message: "entitlement missing"},
			denied: true,
		},
		{
			name:   "sts rejects token",
			sts:    &fakeSTS{err: &smithy.GenericAPIError{Code: "InvalidIdentityToken"}},
			denied: true,
		},
		{
			name:  "s3 missing key",
			sts:   stsOK(),
			s3Err: &smithy.GenericAPIError{Code: "NoSuchKey"},
		},
		{
			name:  "transport failure",
			sts:   stsOK(),
			s3Err: errors.New("connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFetcher(t, tt.sts, &fakeS3{err: tt.s3Err})

			_, err := f.FetchManifest(context.Background(), "jwt", "s3://b/k")
			require.Error(t, err)
			if tt.denied {
				assert.True(t, errs.IsManifestDenied(err))
				assert.True(t, errors.Is(err, manifest.ErrAccessDenied))
				assert.Equal(t, "Access Denied: Insufficient entitlements", errs.GetMessage(err, ""))
				return
			}
			assert.Equal(t, errs.ErrCodeManifestFailed, errs.GetCode(err))
			assert.False(t, errors.Is(err, manifest.ErrAccessDenied))
		})
	}
}

func TestFetchManifest_NoCredentials(t *testing.T) {
	f := newTestFetcher(t, &fakeSTS{out: &sts.AssumeRoleWithWebIdentityOutput{}}, &fakeS3{})

	_, err := f.FetchManifest(context.Background(), "jwt", "s3://b/k")
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeManifestFailed, errs.GetCode(err))
}

func TestFetchManifest_EmptyAndGarbageBodies(t *testing.T) {
	for _, body := range []string{"", "not json"} {
		f := newTestFetcher(t, stsOK(), &fakeS3{body: body})

		_, err := f.FetchManifest(context.Background(), "jwt", "s3://b/k")
		require.Error(t, err)
		assert.Equal(t, errs.ErrCodeManifestFailed, errs.GetCode(err))
	}
}
