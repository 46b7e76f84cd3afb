package mongoutil

import (
	"context"
	"errors"
	"testing"

	"PPGateway/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestValidateAndSetDefaults(t *testing.T) {
	c := &Config{Address: []string{"10.0.0.1:27017", "10.0.0.2:27017"}, Database: "im", Username: "gw", Password: "pw"}
	require.NoError(t, c.ValidateAndSetDefaults())
	assert.Equal(t, defaultMaxPoolSize, c.MaxPoolSize)
	assert.Equal(t, defaultMaxRetry, c.MaxRetry)
	assert.Equal(t, "mongodb://gw:pw@10.0.0.1:27017,10.0.0.2:27017/im?authSource=im&maxPoolSize=100", c.Uri)
}

func TestValidateKeepsURI(t *testing.T) {
	c := &Config{Uri: "mongodb://localhost:27017", Database: "im", AuthSource: "admin"}
	require.NoError(t, c.ValidateAndSetDefaults())
	assert.Equal(t, "mongodb://localhost:27017", c.Uri)
}

func TestValidateRejects(t *testing.T) {
	err := (&Config{Database: "im"}).ValidateAndSetDefaults()
	assert.True(t, errs.ErrArgs.Is(err))

	err = (&Config{Uri: "mongodb://localhost"}).ValidateAndSetDefaults()
	assert.True(t, errs.ErrArgs.Is(err))
}

func TestBuildURIWithoutCredentials(t *testing.T) {
	c := &Config{Address: []string{"db:27017"}, Database: "im", MaxPoolSize: 5}
	assert.Equal(t, "mongodb://db:27017/im?authSource=admin&maxPoolSize=5", buildMongoURI(c, "admin"))
}

func TestShouldRetry(t *testing.T) {
	ctx := context.Background()
	assert.True(t, shouldRetry(ctx, errors.New("dial tcp: refused")))
	assert.False(t, shouldRetry(ctx, mongo.CommandError{Code: 18}))
	assert.True(t, shouldRetry(ctx, mongo.CommandError{Code: 11600}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, shouldRetry(cancelled, errors.New("x")))
}

func TestApplyConfigRequiresTarget(t *testing.T) {
	_, err := applyConfigToOptions(&Config{})
	assert.Error(t, err)

	opts, err := applyConfigToOptions(&Config{Uri: "mongodb://localhost:27017", MaxPoolSize: 7, Username: "gw", AuthSource: "admin"})
	require.NoError(t, err)
	require.NotNil(t, opts.MaxPoolSize)
	assert.Equal(t, uint64(7), *opts.MaxPoolSize)
	require.NotNil(t, opts.Auth)
	assert.Equal(t, "admin", opts.Auth.AuthSource)
}
