package leecher

import (
	"context"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/omnicloud/swarmhub/internal/swarmerr"
	"github.com/omnicloud/swarmhub/internal/trackerclient"
	"github.com/omnicloud/swarmhub/internal/wire"
)

// Options configures a single Download call.
type Options struct {
	FileName    string
	DestDir     string
	Parallelism int
	RetryBudget int

	ChunkTimeout     time.Duration
	DiscoveryTimeout time.Duration

	// ExpectedFileHash, if non-nil, is checked against the reassembled
	// file before it is made visible at its final path.
	ExpectedFileHash *[32]byte

	Progress *ProgressBroadcaster
}

// Leecher downloads a named file from whichever seeders the tracker
// knows about. The zero value is not usable; construct with New.
type Leecher struct {
	client *trackerclient.Client
}

// New returns a Leecher that talks to the tracker through client.
func New(client *trackerclient.Client) *Leecher {
	return &Leecher{client: client}
}

// Download runs the full algorithm named in §4.4: discover seeders, size
// the file, fetch its chunk hashes, dispatch parallel GETs, reassemble,
// and (optionally) verify the whole file. On success it returns the path
// of the written file.
func (l *Leecher) Download(ctx context.Context, opts Options) (string, error) {
	sessionID := uuid.New().String()
	log.Printf("[leecher] session=%s starting download of %s", sessionID, opts.FileName)

	peers, err := l.client.RequestPeers(opts.FileName)
	if err != nil {
		return "", fmt.Errorf("leecher: request peers for %s: %w", opts.FileName, err)
	}
	if len(peers) == 0 {
		return "", fmt.Errorf("leecher: %s: %w", opts.FileName, swarmerr.ErrNoSeeders)
	}

	chunkCount, err := l.client.ChunkCount(opts.FileName)
	if err != nil {
		return "", fmt.Errorf("leecher: get chunk count for %s: %w", opts.FileName, err)
	}

	hashes, err := fetchChunkHashes(ctx, peers[0], opts.FileName, opts.ChunkTimeout)
	if err != nil {
		return "", fmt.Errorf("leecher: get chunk hashes for %s: %w", opts.FileName, err)
	}

	newScheduler := func(peers []wire.PeerAddr) *Scheduler {
		sched := NewScheduler(peers, opts.FileName, int(chunkCount), hashes, opts.Parallelism, opts.RetryBudget, opts.ChunkTimeout)
		if opts.Progress != nil {
			sched.OnProgress(func(completed, total int) {
				opts.Progress.Publish(ProgressUpdate{FileName: opts.FileName, Completed: completed, Total: total})
			})
		}
		return sched
	}

	sched := newScheduler(peers)
	chunks, err := sched.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", swarmerr.ErrCancelled
		}

		// One-time tracker refresh: the seeder set we started with may
		// have gone stale mid-download; ask once more before giving up.
		refreshed, refreshErr := l.client.RequestPeers(opts.FileName)
		if refreshErr != nil || len(refreshed) == 0 {
			return "", err
		}
		sched = newScheduler(refreshed)
		chunks, err = sched.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", swarmerr.ErrCancelled
			}
			return "", err
		}
	}

	destPath := filepath.Join(opts.DestDir, opts.FileName)
	if err := Reassemble(ctx, destPath, chunks, opts.ExpectedFileHash); err != nil {
		return "", err
	}
	log.Printf("[leecher] session=%s downloaded %s (%d chunks) to %s", sessionID, opts.FileName, chunkCount, destPath)
	return destPath, nil
}

// fetchChunkHashes asks one seeder for the CHUNK_HASHES vector needed to
// verify each chunk as it arrives (§9's resolution: the seeder, not the
// tracker, carries chunk hashes).
func fetchChunkHashes(ctx context.Context, peer wire.PeerAddr, fileName string, timeout time.Duration) ([][32]byte, error) {
	addr := fmt.Sprintf("%s:%d", peer.Addr, peer.Port)
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", swarmerr.ErrConnectFailed, addr, err)
	}
	defer conn.Close()
	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	req := wire.NewCommand(wire.CommandChunkHashes, wire.Fields{FileName: fileName})
	if err := wire.WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("%w: write CHUNK_HASHES: %v", swarmerr.ErrConnectFailed, err)
	}
	reply, err := wire.ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: read reply: %v", swarmerr.ErrReadTimeout, err)
	}
	if reply.Header.ControlKind == wire.ControlError {
		return nil, fmt.Errorf("seeder error: %s", reply.Header.Fields.ErrorText)
	}
	if reply.Header.ControlKind != wire.ControlChunkHashes {
		return nil, fmt.Errorf("%w: unexpected reply kind %d", swarmerr.ErrShortRead, reply.Header.ControlKind)
	}
	return reply.Header.Fields.ChunkHashes, nil
}
