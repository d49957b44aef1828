package token

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"mailsync/internal/config"
	"mailsync/internal/model"
)

// AccountStore is the account credential bookkeeping the provider needs.
type AccountStore interface {
	Find(ctx context.Context, id string) (*model.Account, error)
	RecordSyncError(ctx context.Context, id, message string) error
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiry time.Time) error
}

// Provider hands out a valid access token for an account, refreshing it
// through the OAuth token endpoint when the stored one has expired.
// Refresh failures are recorded on the account before being returned.
type Provider struct {
	accounts AccountStore
	codec    *Codec
	oauth    *oauth2.Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewProvider(accounts AccountStore, codec *Codec, cfg config.ProviderConfig, logger *zap.Logger) *Provider {
	return &Provider{
		accounts: accounts,
		codec:    codec,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		},
		logger: logger,
		now:    time.Now,
	}
}

// FreshAccessToken returns a usable access token for the account. Returns
// model.ErrAccountNotFound when the account does not exist.
func (p *Provider) FreshAccessToken(ctx context.Context, accountID string) (string, error) {
	acct, err := p.accounts.Find(ctx, accountID)
	if err != nil {
		return "", err
	}

	if acct.TokenValid(p.now()) {
		return acct.AccessToken, nil
	}

	refresh, err := p.codec.Decrypt(acct.RefreshToken)
	if err != nil {
		_ = p.accounts.RecordSyncError(ctx, accountID, "stored refresh token unreadable")
		return "", err
	}
	if refresh == "" {
		err := fmt.Errorf("account %s has no refresh token", accountID)
		_ = p.accounts.RecordSyncError(ctx, accountID, err.Error())
		return "", err
	}

	src := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh})
	tok, err := src.Token()
	if err != nil {
		p.logger.Error("Token refresh failed",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		_ = p.accounts.RecordSyncError(ctx, accountID, "token refresh failed: "+err.Error())
		return "", fmt.Errorf("refresh access token: %w", err)
	}

	// The endpoint may rotate the refresh token; persist it only when it did.
	storedRefresh := ""
	if tok.RefreshToken != "" && tok.RefreshToken != refresh {
		storedRefresh, err = p.codec.Encrypt(tok.RefreshToken)
		if err != nil {
			return "", err
		}
	}
	if err := p.accounts.UpdateTokens(ctx, accountID, tok.AccessToken, storedRefresh, tok.Expiry); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	p.logger.Debug("Access token refreshed",
		zap.String("account_id", accountID),
		zap.Time("expiry", tok.Expiry),
	)
	return tok.AccessToken, nil
}
