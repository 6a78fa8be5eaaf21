// Package leecher implements the downloading role: discover seeders,
// learn the file's chunk layout, pull chunks in parallel across a bounded
// worker pool, verify each chunk's hash, and reassemble the file.
package leecher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omnicloud/swarmhub/internal/swarmerr"
	"github.com/omnicloud/swarmhub/internal/wire"
)

// Scheduler drives the chunk-download dispatch step: a shared index queue
// drained by a bounded pool of workers, each cycling through its own
// round-robin slice of the known seeders (worker k gets peers[k],
// peers[k+numWorkers], peers[k+2*numWorkers], ...). A chunk whose hash
// fails to verify, or whose seeder is unreachable, is retried against the
// next seeder in the worker's rotation; once a chunk's retry budget is
// spent the whole download fails.
type Scheduler struct {
	peers        []wire.PeerAddr
	fileName     string
	chunkCount   int
	hashes       [][32]byte
	parallelism  int
	retryBudget  int
	chunkTimeout time.Duration

	onProgress func(completed, total int)
}

// NewScheduler returns a Scheduler ready to fetch every chunk of fileName
// from peers, verifying each against hashes[i].
func NewScheduler(peers []wire.PeerAddr, fileName string, chunkCount int, hashes [][32]byte, parallelism, retryBudget int, chunkTimeout time.Duration) *Scheduler {
	if parallelism < 1 {
		parallelism = 1
	}
	if retryBudget < 1 {
		retryBudget = 1
	}
	return &Scheduler{
		peers:        peers,
		fileName:     fileName,
		chunkCount:   chunkCount,
		hashes:       hashes,
		parallelism:  parallelism,
		retryBudget:  retryBudget,
		chunkTimeout: chunkTimeout,
	}
}

// OnProgress registers a callback invoked once per completed chunk, with
// the current completed count and the total chunk count. Calls are
// serialized in completion order, so Completed is monotonically
// non-decreasing across a Run. Must be set before Run is called.
func (s *Scheduler) OnProgress(fn func(completed, total int)) {
	s.onProgress = fn
}

func (s *Scheduler) peersForWorker(workerIndex, numWorkers int) []wire.PeerAddr {
	var subset []wire.PeerAddr
	for i := workerIndex; i < len(s.peers); i += numWorkers {
		subset = append(subset, s.peers[i])
	}
	return subset
}

// Run downloads every chunk and returns the assembled slice of chunk
// bodies, indexed by chunk index. It returns swarmerr.ErrFailedChunk
// (wrapped) if any single chunk exhausts its retry budget, or the ctx
// error if cancelled first.
func (s *Scheduler) Run(ctx context.Context) ([][]byte, error) {
	if s.chunkCount == 0 {
		return nil, nil
	}
	if len(s.peers) == 0 {
		return nil, swarmerr.ErrNoSeeders
	}

	numWorkers := s.parallelism
	if numWorkers > len(s.peers) {
		numWorkers = len(s.peers)
	}
	if numWorkers > s.chunkCount {
		numWorkers = s.chunkCount
	}

	queue := make(chan int, s.chunkCount*(s.retryBudget+1))
	for i := 0; i < s.chunkCount; i++ {
		queue <- i
	}

	results := make([][]byte, s.chunkCount)
	retryCounts := make([]int32, s.chunkCount)

	var mu sync.Mutex
	remaining := s.chunkCount
	doneCh := make(chan struct{})
	var closeDone sync.Once
	var failErr error

	finish := func(err error) {
		mu.Lock()
		if failErr == nil {
			failErr = err
		}
		mu.Unlock()
		closeDone.Do(func() { close(doneCh) })
	}

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		subset := s.peersForWorker(w, numWorkers)
		if len(subset) == 0 {
			continue
		}
		wg.Add(1)
		go func(subset []wire.PeerAddr) {
			defer wg.Done()
			cursor := 0
			for {
				select {
				case <-ctx.Done():
					return
				case <-doneCh:
					return
				case index, ok := <-queue:
					if !ok {
						return
					}
					peer := subset[cursor%len(subset)]
					cursor++

					data, err := s.downloadChunk(ctx, peer, index)
					if err != nil {
						n := atomic.AddInt32(&retryCounts[index], 1)
						if int(n) >= s.retryBudget {
							finish(fmt.Errorf("leecher: chunk %d of %s: %w: %v", index, s.fileName, swarmerr.ErrFailedChunk, err))
							continue
						}
						select {
						case queue <- index:
						case <-ctx.Done():
						case <-doneCh:
						}
						continue
					}

					mu.Lock()
					results[index] = data
					remaining--
					completed := s.chunkCount - remaining
					done := remaining == 0
					if s.onProgress != nil {
						s.onProgress(completed, s.chunkCount)
					}
					mu.Unlock()
					if done {
						closeDone.Do(func() { close(doneCh) })
					}
				}
			}
		}(subset)
	}

	wg.Wait()

	mu.Lock()
	err := failErr
	left := remaining
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	if left != 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("leecher: %s: %w", s.fileName, swarmerr.ErrFailedFile)
	}
	return results, nil
}

func (s *Scheduler) downloadChunk(ctx context.Context, peer wire.PeerAddr, index int) ([]byte, error) {
	addr := net.JoinHostPort(peer.Addr, fmt.Sprintf("%d", peer.Port))

	dialer := net.Dialer{Timeout: s.chunkTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", swarmerr.ErrConnectFailed, addr, err)
	}
	defer conn.Close()

	if s.chunkTimeout > 0 {
		conn.SetDeadline(time.Now().Add(s.chunkTimeout))
	}

	req := wire.NewCommand(wire.CommandGet, wire.Fields{FileName: s.fileName, ChunkIndex: uint32(index)})
	if err := wire.WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("%w: write GET: %v", swarmerr.ErrConnectFailed, err)
	}

	reply, err := wire.ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: read reply: %v", swarmerr.ErrReadTimeout, err)
	}
	if reply.Header.MessageKind != wire.MessageControl || reply.Header.ControlKind == wire.ControlError {
		return nil, fmt.Errorf("seeder error for chunk %d: %s", index, reply.Header.Fields.ErrorText)
	}
	if reply.Header.ControlKind != wire.ControlChunkData {
		return nil, fmt.Errorf("%w: unexpected reply kind %d", swarmerr.ErrShortRead, reply.Header.ControlKind)
	}

	if index < len(s.hashes) {
		got := sha256.Sum256(reply.Body)
		if got != s.hashes[index] {
			return nil, fmt.Errorf("%w: chunk %d", swarmerr.ErrChunkHashMismatch, index)
		}
	}
	return reply.Body, nil
}
