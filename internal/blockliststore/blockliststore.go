// Package blockliststore persists the operator-managed address, host and
// POI blocklists, the one piece of state in this service that legitimately
// outlives a single refresh (the published snapshot itself never does).
package blockliststore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/semiotic-ai/network-topology/internal/ids"
	"github.com/semiotic-ai/network-topology/internal/poi"
)

// ErrAlreadyBlocked is returned when an entry is inserted that already
// exists.
var ErrAlreadyBlocked = errors.New("blockliststore: entry already exists")

// Store is a pgx-backed CRUD store for the three blocklists. It implements
// topology.BlocklistSource.
type Store struct {
	pool *pgxpool.Pool
}

// New builds a Store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// AddAddress blocklists an indexer address.
func (s *Store) AddAddress(ctx context.Context, addr ids.IndexerAddr, reason string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO address_blocklist (address, reason) VALUES ($1, $2)`,
		addr.String(), reason)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyBlocked
		}
		return fmt.Errorf("blockliststore: insert address: %w", err)
	}
	return nil
}

// RemoveAddress un-blocklists an indexer address.
func (s *Store) RemoveAddress(ctx context.Context, addr ids.IndexerAddr) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM address_blocklist WHERE address = $1`, addr.String())
	if err != nil {
		return fmt.Errorf("blockliststore: delete address: %w", err)
	}
	return nil
}

// AddressBlocklist implements topology.BlocklistSource.
func (s *Store) AddressBlocklist(ctx context.Context) ([]ids.IndexerAddr, error) {
	rows, err := s.pool.Query(ctx, `SELECT address FROM address_blocklist`)
	if err != nil {
		return nil, fmt.Errorf("blockliststore: list addresses: %w", err)
	}
	defer rows.Close()

	var out []ids.IndexerAddr
	for rows.Next() {
		var hexAddr string
		if err := rows.Scan(&hexAddr); err != nil {
			return nil, fmt.Errorf("blockliststore: scan address: %w", err)
		}
		addr, err := ids.ParseIndexerAddr(hexAddr)
		if err != nil {
			continue
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// AddHostCIDR blocklists an IP network.
func (s *Store) AddHostCIDR(ctx context.Context, cidr, reason string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO host_blocklist (cidr, reason) VALUES ($1, $2)`, cidr, reason)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyBlocked
		}
		return fmt.Errorf("blockliststore: insert host cidr: %w", err)
	}
	return nil
}

// RemoveHostCIDR un-blocklists an IP network.
func (s *Store) RemoveHostCIDR(ctx context.Context, cidr string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM host_blocklist WHERE cidr = $1`, cidr)
	if err != nil {
		return fmt.Errorf("blockliststore: delete host cidr: %w", err)
	}
	return nil
}

// HostBlocklistCIDRs implements topology.BlocklistSource.
func (s *Store) HostBlocklistCIDRs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT cidr FROM host_blocklist`)
	if err != nil {
		return nil, fmt.Errorf("blockliststore: list host cidrs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var cidr string
		if err := rows.Scan(&cidr); err != nil {
			return nil, fmt.Errorf("blockliststore: scan host cidr: %w", err)
		}
		out = append(out, cidr)
	}
	return out, rows.Err()
}

// AddPOIEntry blocklists a (deployment, block, poi) triple.
func (s *Store) AddPOIEntry(ctx context.Context, dep ids.DeploymentId, block uint64, forbiddenPOI string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO poi_blocklist (deployment, block, forbidden_poi) VALUES ($1, $2, $3)`,
		dep.String(), block, forbiddenPOI)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyBlocked
		}
		return fmt.Errorf("blockliststore: insert poi entry: %w", err)
	}
	return nil
}

// RemovePOIEntry un-blocklists a (deployment, block, poi) triple.
func (s *Store) RemovePOIEntry(ctx context.Context, dep ids.DeploymentId, block uint64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM poi_blocklist WHERE deployment = $1 AND block = $2`, dep.String(), block)
	if err != nil {
		return fmt.Errorf("blockliststore: delete poi entry: %w", err)
	}
	return nil
}

// POIEntries implements topology.BlocklistSource.
func (s *Store) POIEntries(ctx context.Context) ([]poi.Entry, error) {
	rows, err := s.pool.Query(ctx, `SELECT deployment, block, forbidden_poi FROM poi_blocklist`)
	if err != nil {
		return nil, fmt.Errorf("blockliststore: list poi entries: %w", err)
	}
	defer rows.Close()

	var out []poi.Entry
	for rows.Next() {
		var hexDep string
		var block uint64
		var forbidden string
		if err := rows.Scan(&hexDep, &block, &forbidden); err != nil {
			return nil, fmt.Errorf("blockliststore: scan poi entry: %w", err)
		}
		dep, err := ids.ParseDeploymentId(hexDep)
		if err != nil {
			continue
		}
		out = append(out, poi.Entry{Deployment: dep, Block: block, ForbiddenPOI: forbidden})
	}
	return out, rows.Err()
}
