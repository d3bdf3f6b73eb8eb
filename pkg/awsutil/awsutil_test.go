package awsutil_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/awsutil"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	cfg, err := awsutil.Load(context.Background(), awsutil.Config{
		Region:      "eu-west-1",
		AccessKeyID: "key",
		SecretKey:   "secret",
		Endpoint:    "http://localhost:4566",
	})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
	require.NotNil(t, cfg.BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *cfg.BaseEndpoint)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key", creds.AccessKeyID)

	_, err = awsutil.Load(context.Background(), awsutil.Config{})
	assert.ErrorIs(t, err, awsutil.ErrInvalidConfig)
}
