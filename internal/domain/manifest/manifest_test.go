package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    Location
		wantErr bool
	}{
		{name: "simple", uri: "s3://manifests/v1.json", want: Location{Bucket: "manifests", Key: "v1.json"}},
		{name: "nested key", uri: "s3://cop/2025/03/v1.json", want: Location{Bucket: "cop", Key: "2025/03/v1.json"}},
		{name: "wrong scheme", uri: "https://cop/v1.json", wantErr: true},
		{name: "empty", uri: "", wantErr: true},
		{name: "bucket only", uri: "s3://cop", wantErr: true},
		{name: "bucket with slash", uri: "s3://cop/", wantErr: true},
		{name: "missing bucket", uri: "s3:///key", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
