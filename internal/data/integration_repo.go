package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/publora/publora/internal/domain/model"
)

// IntegrationRepo reads user platform integrations. The pipeline never
// mutates integrations; rows are managed by the API layer.
type IntegrationRepo struct {
	DB *sql.DB
}

// NewIntegrationRepo creates an IntegrationRepo over the given connection pool.
func NewIntegrationRepo(db *sql.DB) *IntegrationRepo {
	return &IntegrationRepo{DB: db}
}

// ActiveForUser returns the user's active integrations keyed by lower-cased
// platform name. When two active rows share a platform the later row wins,
// matching the map-construction order of the query.
func (r *IntegrationRepo) ActiveForUser(ctx context.Context, userID string) (map[string]model.Integration, error) {
	rows, err := r.DB.QueryContext(ctx, `
      SELECT id, user_id, platform, is_active, credentials, config
      FROM integrations
      WHERE user_id = $1 AND is_active = TRUE
      ORDER BY updated_at ASC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query active integrations: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make(map[string]model.Integration)
	for rows.Next() {
		integration, scanErr := scanIntegration(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan integration: %w", scanErr)
		}
		out[integration.PlatformKey()] = *integration
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate integrations: %w", rowsErr)
	}
	return out, nil
}

func scanIntegration(scanner jobRowScanner) (*model.Integration, error) {
	integration := &model.Integration{}
	var credsRaw, configRaw []byte
	if err := scanner.Scan(
		&integration.ID,
		&integration.UserID,
		&integration.Platform,
		&integration.IsActive,
		&credsRaw,
		&configRaw,
	); err != nil {
		return nil, err
	}

	if len(credsRaw) > 0 {
		if err := json.Unmarshal(credsRaw, &integration.Credentials); err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
	}
	if len(configRaw) > 0 {
		if err := json.Unmarshal(configRaw, &integration.Config); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	return integration, nil
}
