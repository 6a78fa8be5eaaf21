// Package peer composes the tracker client, the seeding role, and the
// downloading role behind one process identity, and implements the
// promotion a successful download triggers: the process that was a
// Leecher for a file becomes one of its Seeders, grounded on the
// teacher's Client type which owns both its outbound torrent map and a
// single tracker reference rather than splitting seeding and leeching
// into separate processes.
package peer

import (
	"context"
	"fmt"
	"log"

	"github.com/omnicloud/swarmhub/internal/config"
	"github.com/omnicloud/swarmhub/internal/leecher"
	"github.com/omnicloud/swarmhub/internal/seeder"
	"github.com/omnicloud/swarmhub/internal/trackerclient"
)

// Peer is one process's view of the swarm: a tracker client shared by
// its Seeder and Leecher collaborators.
type Peer struct {
	cfg    *config.Config
	client *trackerclient.Client
	Seeder *seeder.Seeder
	leech  *leecher.Leecher
}

// New builds a Peer from cfg. The returned Peer's Seeder is constructed
// but not yet bound or running; Seed or StartSeeding binds it, and
// StartSeeding serves.
func New(cfg *config.Config) *Peer {
	client := trackerclient.New(cfg.TrackerAddr, cfg.DiscoveryTimeout)
	return &Peer{
		cfg:    cfg,
		client: client,
		Seeder: seeder.New(client, cfg.KeepaliveInterval, cfg.ServeTimeout, cfg.MaxInflightServes),
		leech:  leecher.New(client),
	}
}

// StartSeeding binds the seeder's listener (unless Seed already bound it)
// and runs its accept/heartbeat loops until ctx is cancelled.
func (p *Peer) StartSeeding(ctx context.Context) error {
	if p.Seeder.Addr() == nil {
		if err := p.Seeder.Bind(p.cfg.SeederBind); err != nil {
			return err
		}
	}
	log.Printf("[peer] seeding on %s", p.Seeder.Addr())
	return p.Seeder.Run(ctx)
}

// Seed ingests an existing local file and registers it with the tracker,
// without downloading anything first. It binds the seeder's listener first
// if it is not bound yet, so the registration carries the real port.
func (p *Peer) Seed(fileName, path string, hashWorkers int) error {
	if p.Seeder.Addr() == nil {
		if err := p.Seeder.Bind(p.cfg.SeederBind); err != nil {
			return err
		}
	}
	return p.Seeder.IngestAndRegister(fileName, path, p.cfg.ChunkSize, hashWorkers)
}

// Fetch downloads fileName per the Leecher algorithm and then promotes
// this process to a Seeder for it: the downloaded file is re-ingested
// into the local ChunkMap and re-registered with the tracker, so the next
// peer to REQUEST this file's PEER_LIST finds this process among them.
func (p *Peer) Fetch(ctx context.Context, fileName string, expectedFileHash *[32]byte, progress *leecher.ProgressBroadcaster) (string, error) {
	path, err := p.leech.Download(ctx, leecher.Options{
		FileName:         fileName,
		DestDir:          p.cfg.DownloadDir,
		Parallelism:      p.cfg.Parallelism,
		RetryBudget:      p.cfg.RetryBudgetPerChunk,
		ChunkTimeout:     p.cfg.ChunkTimeout,
		DiscoveryTimeout: p.cfg.DiscoveryTimeout,
		ExpectedFileHash: expectedFileHash,
		Progress:         progress,
	})
	if err != nil {
		return "", err
	}

	hashWorkers := p.cfg.Parallelism
	if err := p.Seeder.IngestAndRegister(fileName, path, p.cfg.ChunkSize, hashWorkers); err != nil {
		return path, fmt.Errorf("peer: promote %s to seeder after download: %w", fileName, err)
	}
	log.Printf("[peer] promoted to seeder for %s", fileName)
	return path, nil
}

// Client exposes the shared tracker client for direct REQUEST/GET_COUNT
// calls (used by cmd/swarmhub's fetch when it downloads without seeding
// afterwards).
func (p *Peer) Client() *trackerclient.Client { return p.client }
