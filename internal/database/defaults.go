package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nao1215/roilabel/internal/geometry"
	"github.com/nao1215/roilabel/internal/model"
)

// LoadDefaults returns the defaults remembered for server. When nothing was
// saved yet, or a stored value is unusable, model.NewDefaults values are used.
func (h *HistoryDB) LoadDefaults(ctx context.Context, server string) (model.Defaults, error) {
	d := model.NewDefaults()

	var (
		modelName sql.NullString
		region    sql.NullString
		tileSize  sql.NullInt64
	)
	err := h.db.QueryRowContext(ctx,
		`SELECT model, region, tile_size FROM defaults WHERE server = ?`, server,
	).Scan(&modelName, &region, &tileSize)
	if errors.Is(err, sql.ErrNoRows) {
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("failed to load defaults: %w", err)
	}

	d.Model = modelName.String
	if region.Valid && region.String != "" {
		if r, err := geometry.ParseRegion(region.String); err == nil {
			d.Region = r
		}
	}
	if tileSize.Valid && tileSize.Int64 > 0 {
		d.TileSize = int(tileSize.Int64)
	}
	return d, nil
}

// SaveDefaults remembers d for server.
func (h *HistoryDB) SaveDefaults(ctx context.Context, server string, d model.Defaults) error {
	query := `
	INSERT INTO defaults (server, model, region, tile_size)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(server) DO UPDATE SET
		model = excluded.model,
		region = excluded.region,
		tile_size = excluded.tile_size,
		updated_at = CURRENT_TIMESTAMP
	`
	if _, err := h.db.ExecContext(ctx, query, server, d.Model, d.Region.String(), d.TileSize); err != nil {
		return fmt.Errorf("failed to save defaults: %w", err)
	}
	return nil
}
