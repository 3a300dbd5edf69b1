package s4

// Package s4 fetches vehicle manifests from the S4 object gateway: the
// operator's access token is exchanged for temporary credentials through STS
// AssumeRoleWithWebIdentity, then the object is read with S3 GetObject.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/cop-agent/internal/domain/manifest"
	errs "github.com/target/cop-agent/internal/errors"
	"github.com/target/cop-agent/internal/ports"
)

var _ ports.ManifestFetcher = (*Fetcher)(nil)

const (
	// DefaultEndpoint is the local S4 gateway.
	DefaultEndpoint = "http://localhost:7070"
	// DefaultRegion is required by the SDK; S4 ignores it.
	DefaultRegion = "us-east-1"
	// DefaultRoleARN is required by STS; S4 ignores it.
	DefaultRoleARN = "arn:aws:iam::000000000000:role/cop-ui"
	// DefaultSessionDuration is the lifetime of the temporary credentials.
	DefaultSessionDuration = time.Hour

	maxManifestBytes = 8 << 20

	registrationExpr = "vehicle.registration"
	operatorExpr     = "vehicle.operator"
)

// STSAPI is the subset of the STS client used here.
type STSAPI interface {
	AssumeRoleWithWebIdentity(ctx context.Context, in *sts.AssumeRoleWithWebIdentityInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error)
}

// S3API is the subset of the S3 client used here.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options configures a Fetcher built from an aws.Config.
type Options struct {
	Endpoint        string
	RoleARN         string
	SessionDuration time.Duration
	Now             func() time.Time
}

// Fetcher implements ports.ManifestFetcher.
type Fetcher struct {
	sts      STSAPI
	newS3    func(aws.CredentialsProvider) S3API
	roleARN  string
	duration time.Duration
	now      func() time.Time
}

// NewFetcher builds STS and S3 clients against the S4 endpoint. S3 uses
// path-style addressing.
func NewFetcher(cfg aws.Config, opts Options) *Fetcher {
	opts = opts.withDefaults()
	endpoint := opts.Endpoint

	stsClient := sts.NewFromConfig(cfg, func(o *sts.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	newS3 := func(creds aws.CredentialsProvider) S3API {
		return s3.NewFromConfig(cfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
			o.Credentials = creds
		})
	}
	return NewFetcherWithClients(stsClient, newS3, opts)
}

// NewFetcherWithClients wires explicit clients; newS3 receives the temporary credentials.
func NewFetcherWithClients(stsClient STSAPI, newS3 func(aws.CredentialsProvider) S3API, opts Options) *Fetcher {
	opts = opts.withDefaults()
	return &Fetcher{
		sts:      stsClient,
		newS3:    newS3,
		roleARN:  opts.RoleARN,
		duration: opts.SessionDuration,
		now:      opts.Now,
	}
}

func (o Options) withDefaults() Options {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}
	if o.RoleARN == "" {
		o.RoleARN = DefaultRoleARN
	}
	if o.SessionDuration <= 0 {
		o.SessionDuration = DefaultSessionDuration
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// FetchManifest exchanges accessToken for temporary credentials and reads the manifest at uri.
func (f *Fetcher) FetchManifest(ctx context.Context, accessToken, uri string) (*manifest.Manifest, error) {
	loc, err := manifest.ParseURI(uri)
	if err != nil {
		return nil, errs.ValidationField("uri", err.Error())
	}

	creds, err := f.assumeRole(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	out, err := f.newS3(creds).GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, classify(err, "get manifest object")
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxManifestBytes))
	if err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeManifestFailed, "read manifest object")
	}
	if len(body) == 0 {
		return nil, errs.New(errs.ErrCodeManifestFailed, "No data received from S4")
	}
	return decode(body)
}

func (f *Fetcher) assumeRole(ctx context.Context, accessToken string) (aws.CredentialsProvider, error) {
	out, err := f.sts.AssumeRoleWithWebIdentity(ctx, &sts.AssumeRoleWithWebIdentityInput{
		RoleArn:          aws.String(f.roleARN),
		WebIdentityToken: aws.String(accessToken),
		RoleSessionName:  aws.String("cop-ui-session-" + strconv.FormatInt(f.now().UnixMilli(), 10)),
		DurationSeconds:  aws.Int32(int32(f.duration / time.Second)),
	})
	if err != nil {
		return nil, classify(err, "assume role with web identity")
	}
	if out.Credentials == nil {
		return nil, errs.New(errs.ErrCodeManifestFailed, "No credentials returned from STS")
	}
	c := out.Credentials
	return credentials.NewStaticCredentialsProvider(
		aws.ToString(c.AccessKeyId),
		aws.ToString(c.SecretAccessKey),
		aws.ToString(c.SessionToken),
	), nil
}

// decode parses the manifest document and extracts the vehicle summary.
func decode(body []byte) (*manifest.Manifest, error) {
	var m manifest.Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeManifestFailed, "decode manifest")
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errs.Wrap(err, errs.ErrCodeManifestFailed, "decode manifest")
	}
	m.Raw = raw
	m.Summary = manifest.Summary{
		Registration: searchString(registrationExpr, raw),
		Operator:     searchString(operatorExpr, raw),
	}
	return &m, nil
}

// searchString evaluates expr and returns a non-empty string result, or nil.
func searchString(expr string, data any) *string {
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

var deniedCodes = map[string]struct{}{
	"AccessDenied":         {},
	"Forbidden":            {},
	"InvalidIdentityToken": {},
}

// classify separates entitlement denials from every other failure.
func classify(err error, op string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := deniedCodes[apiErr.ErrorCode()]; ok {
			return errs.Wrap(fmt.Errorf("%w: %w", manifest.ErrAccessDenied, err),
				errs.ErrCodeManifestDenied, "Access Denied: Insufficient entitlements")
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 403 {
		return errs.Wrap(fmt.Errorf("%w: %w", manifest.ErrAccessDenied, err),
			errs.ErrCodeManifestDenied, "Access Denied: Insufficient entitlements")
	}
	return errs.Wrap(err, errs.ErrCodeManifestFailed, op)
}
