package auth

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/driftwire/driftwire/config"
	"github.com/driftwire/driftwire/globals"
)

// VerifyOIDC verifies a given OIDC ID-Token using the configured OIDC provider.
// It returns the identity claims if verification was successful. The user's id
// is set to the "email" property of the claim.
func (a *Authenticator) VerifyOIDC(ctx context.Context, idToken, providerName string) (*Claims, error) {
	if idToken == "" || len(a.cfg.OIDCConfigs) == 0 {
		return nil, ErrNoCredential
	}
	var oidcConf *config.OIDCConfig
	for i, c := range a.cfg.OIDCConfigs {
		if c.Name == providerName {
			oidcConf = &a.cfg.OIDCConfigs[i]
			break
		}
	}
	if oidcConf == nil {
		globals.AppLogger.Debug("no oidc config found for provider", "provider", providerName)
		return nil, ErrTokenInvalid
	}
	provider, err := oidc.NewProvider(ctx, oidcConf.ProviderUrl)
	if err != nil {
		return nil, err
	}
	conf := oidc.Config{}
	if oidcConf.ClientId == "" {
		conf.SkipClientIDCheck = true
	} else {
		conf.ClientID = oidcConf.ClientId
	}
	verifier := provider.Verifier(&conf)
	verifiedIdToken, err := verifier.Verify(ctx, idToken)
	if err != nil {
		globals.AppLogger.Debug("could not verify id token", "error", err)
		return nil, ErrTokenInvalid
	}
	claims := struct {
		Email string `json:"email"`
	}{}
	err = verifiedIdToken.Claims(&claims)
	if err != nil {
		return nil, err
	}
	if claims.Email == "" {
		return nil, ErrTokenInvalid
	}
	// OIDC tokens carry no role claim, the role comes from the persisted user
	// record if there is one.
	return &Claims{UserId: claims.Email, Email: claims.Email}, nil
}
