package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/vinayprograms/agentkit/logging"
)

// Store resolves credentials from the tenant database.
//
// Assumed tables (owned by the web application, read-only here):
//   - digital_assets (id, customer_id, asset_type, is_active, meta)
//   - connections (digital_asset_id, customer_id, campaigner_id,
//     revoked, refresh_token_enc, access_token_enc)
//   - campaigners (id, full_name, agency_id)
//   - agencies (id, name)
type Store struct {
	db     *sql.DB
	cipher *Cipher
	logger *logging.Logger
}

// NewStore creates a database-backed resolver.
func NewStore(db *sql.DB, cipher *Cipher) *Store {
	return &Store{
		db:     db,
		cipher: cipher,
		logger: logging.New().WithComponent("credentials"),
	}
}

// assetTypeForPlatform maps a platform name to its digital_assets row type.
func assetTypeForPlatform(platform string) (string, bool) {
	switch platform {
	case PlatformGoogleAnalytics:
		return "GA4", true
	case PlatformGoogleAds:
		return "GOOGLE_ADS", true
	case PlatformFacebook:
		return "FACEBOOK_ADS", true
	default:
		return "", false
	}
}

// connectionRow is the joined active asset + non-revoked connection.
type connectionRow struct {
	meta            map[string]interface{}
	refreshTokenEnc sql.NullString
	accessTokenEnc  sql.NullString
}

func (s *Store) activeConnection(ctx context.Context, customerID, campaignerID int64, assetType string) (*connectionRow, error) {
	const q = `
SELECT da.meta, c.refresh_token_enc, c.access_token_enc
FROM digital_assets da
JOIN connections c ON c.digital_asset_id = da.id
WHERE da.customer_id = $1
  AND da.asset_type = $2
  AND da.is_active = TRUE
  AND c.customer_id = $1
  AND c.campaigner_id = $3
  AND c.revoked IS NOT TRUE
LIMIT 1
`
	var rawMeta []byte
	row := &connectionRow{}
	if err := s.db.QueryRowContext(ctx, q, customerID, assetType, campaignerID).Scan(
		&rawMeta,
		&row.refreshTokenEnc,
		&row.accessTokenEnc,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(rawMeta) > 0 {
		if err := json.Unmarshal(rawMeta, &row.meta); err != nil {
			s.logger.Warn("unparsable asset meta", map[string]interface{}{
				"customer_id": customerID,
				"asset_type":  assetType,
			})
			row.meta = nil
		}
	}
	return row, nil
}

func (s *Store) decrypt(ciphertext string) (string, bool) {
	if s.cipher == nil {
		return "", false
	}
	plain, err := s.cipher.Decrypt(ciphertext)
	if err != nil {
		s.logger.Warn("failed to decrypt connection secret", map[string]interface{}{
			"error": err.Error(),
		})
		return "", false
	}
	return plain, true
}

func metaString(meta map[string]interface{}, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

// Resolve looks up the customer's active connection for a platform and
// returns the decrypted bundle, or nil when any required piece is
// missing.
func (s *Store) Resolve(ctx context.Context, customerID, campaignerID int64, platform string) (*Bundle, error) {
	assetType, ok := assetTypeForPlatform(platform)
	if !ok {
		s.logger.Warn("unknown platform in credential lookup", map[string]interface{}{
			"platform": platform,
		})
		return nil, nil
	}

	row, err := s.activeConnection(ctx, customerID, campaignerID, assetType)
	if err != nil {
		return nil, fmt.Errorf("credential lookup for %s: %w", platform, err)
	}
	if row == nil {
		s.logger.Debug("no active connection", map[string]interface{}{
			"customer_id": customerID,
			"platform":    platform,
		})
		return nil, nil
	}

	switch platform {
	case PlatformGoogleAnalytics:
		return s.googleAnalyticsBundle(row)
	case PlatformGoogleAds:
		return s.googleAdsBundle(row)
	case PlatformFacebook:
		return s.facebookBundle(row)
	}
	return nil, nil
}

func (s *Store) googleAnalyticsBundle(row *connectionRow) (*Bundle, error) {
	if !row.refreshTokenEnc.Valid {
		return nil, nil
	}
	refreshToken, ok := s.decrypt(row.refreshTokenEnc.String)
	if !ok {
		return nil, nil
	}
	propertyID := metaString(row.meta, "property_id")
	if propertyID == "" {
		s.logger.Warn("GA4 asset missing property_id", nil)
		return nil, nil
	}

	fields := map[string]string{
		"refresh_token": refreshToken,
		"property_id":   propertyID,
	}
	if row.accessTokenEnc.Valid {
		if accessToken, ok := s.decrypt(row.accessTokenEnc.String); ok {
			fields["access_token"] = accessToken
		}
	}
	s.oauthClientFields(fields)
	return &Bundle{Platform: PlatformGoogleAnalytics, Fields: fields}, nil
}

func (s *Store) googleAdsBundle(row *connectionRow) (*Bundle, error) {
	if !row.refreshTokenEnc.Valid {
		return nil, nil
	}
	refreshToken, ok := s.decrypt(row.refreshTokenEnc.String)
	if !ok {
		return nil, nil
	}
	accountID := metaString(row.meta, "account_id")
	if accountID == "" {
		s.logger.Warn("Google Ads asset missing account_id", nil)
		return nil, nil
	}

	fields := map[string]string{
		"refresh_token": refreshToken,
		"account_id":    accountID,
	}
	s.oauthClientFields(fields)
	if developerToken := os.Getenv("GOOGLE_ADS_DEVELOPER_TOKEN"); developerToken != "" {
		fields["developer_token"] = developerToken
	} else {
		s.logger.Warn("GOOGLE_ADS_DEVELOPER_TOKEN not set", nil)
	}
	return &Bundle{Platform: PlatformGoogleAds, Fields: fields}, nil
}

func (s *Store) facebookBundle(row *connectionRow) (*Bundle, error) {
	if !row.accessTokenEnc.Valid {
		return nil, nil
	}
	accessToken, ok := s.decrypt(row.accessTokenEnc.String)
	if !ok {
		return nil, nil
	}
	adAccountID := metaString(row.meta, "ad_account_id")
	if adAccountID == "" {
		s.logger.Warn("Facebook Ads asset missing ad_account_id", nil)
		return nil, nil
	}

	return &Bundle{Platform: PlatformFacebook, Fields: map[string]string{
		"access_token":  accessToken,
		"ad_account_id": adAccountID,
	}}, nil
}

// oauthClientFields merges the process-level OAuth client identity into
// a bundle. Missing values are a warning; the remote tool call fails on
// its own if it truly needs them.
func (s *Store) oauthClientFields(fields map[string]string) {
	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		s.logger.Warn("GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set", nil)
	}
	if clientID != "" {
		fields["client_id"] = clientID
	}
	if clientSecret != "" {
		fields["client_secret"] = clientSecret
	}
}

// Platforms returns the platforms with an active digital asset for a
// customer. Errors degrade to an empty set.
func (s *Store) Platforms(ctx context.Context, customerID int64) ([]string, error) {
	const q = `
SELECT DISTINCT asset_type
FROM digital_assets
WHERE customer_id = $1 AND is_active = TRUE
`
	rows, err := s.db.QueryContext(ctx, q, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing platforms: %w", err)
	}
	defer rows.Close()

	var platforms []string
	for rows.Next() {
		var assetType string
		if err := rows.Scan(&assetType); err != nil {
			return nil, err
		}
		switch assetType {
		case "GA4":
			platforms = append(platforms, PlatformGoogleAnalytics)
		case "GOOGLE_ADS":
			platforms = append(platforms, PlatformGoogleAds)
		case "FACEBOOK_ADS":
			platforms = append(platforms, PlatformFacebook)
		}
	}
	return platforms, rows.Err()
}

// TenantContext resolves the agency and campaigner names for task
// context.
func (s *Store) TenantContext(ctx context.Context, customerID, campaignerID int64) (TenantContext, error) {
	const q = `
SELECT cp.full_name, a.name
FROM campaigners cp
JOIN agencies a ON a.id = cp.agency_id
WHERE cp.id = $1
`
	var tc TenantContext
	if err := s.db.QueryRowContext(ctx, q, campaignerID).Scan(&tc.Campaigner, &tc.Agency); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TenantContext{}, nil
		}
		return TenantContext{}, fmt.Errorf("tenant lookup: %w", err)
	}
	return tc, nil
}
