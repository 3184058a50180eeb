package authcode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/fence/domain"
)

func TestLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.issue(t, "single", singleURI)

	rec, err := Lookup(ctx, f.store, code)
	require.NoError(t, err)
	assert.Equal(t, "single", rec.ClientID)
	assert.Equal(t, singleURI, rec.RedirectURI)
	assert.False(t, rec.Consumed)

	_, err = f.svc.Redeem(ctx, RedeemRequest{Code: code, ClientID: "single", ClientSecret: secret, RedirectURI: singleURI})
	require.NoError(t, err)

	rec, err = Lookup(ctx, f.store, code)
	require.NoError(t, err)
	assert.True(t, rec.Consumed)

	_, err = Lookup(ctx, f.store, "never-issued")
	assert.ErrorIs(t, err, domain.ErrAuthCodeInvalid)
}
