package corerpc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dashpay/drive-platform/internal/errs"
)

// RetryQueue persists asset-unlock transactions that failed a Core
// broadcast with a retryable error. Each RetryAll call is one retry pass
// over the entries on disk; nothing in this module schedules those passes.
// Once an entry has used its attempt TTL, the file is left in place as a
// permanent audit entry rather than deleted.
//
// Each entry is one file named tx_<unix_ts>_<txid>.dat holding the raw
// transaction bytes, plus a sidecar <name>.attempts file recording how
// many retry passes have been made against it. The entry
// filename format is fixed, so attempt bookkeeping can't live in the
// name itself.
type RetryQueue struct {
	Dir         string
	TTLAttempts uint64 // retries allowed before an entry becomes audit-only
	log         *logrus.Logger
}

// NewRetryQueue opens (creating if necessary) the rejections directory
// dir, whose entries survive a process restart.
func NewRetryQueue(dir string, ttlAttempts uint64) (*RetryQueue, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errs.Wrap(err, "create asset-unlock rejections dir")
	}
	return &RetryQueue{Dir: dir, TTLAttempts: ttlAttempts, log: logrus.StandardLogger()}, nil
}

func txID(txBytes []byte) string {
	sum := sha256.Sum256(txBytes)
	return hex.EncodeToString(sum[:])
}

// Persist writes a failed asset-unlock broadcast to disk for later retry.
func (q *RetryQueue) Persist(txBytes []byte, now time.Time) (string, error) {
	id := txID(txBytes)
	name := fmt.Sprintf("tx_%d_%s.dat", now.Unix(), id)
	path := filepath.Join(q.Dir, name)
	if err := os.WriteFile(path, txBytes, 0o600); err != nil {
		return "", errs.Wrap(err, "persist asset-unlock rejection")
	}
	q.log.WithFields(logrus.Fields{"file": name}).Warn("asset-unlock broadcast failed; queued for retry")
	return path, nil
}

func attemptsPath(dataPath string) string { return dataPath + ".attempts" }

func (q *RetryQueue) attempts(dataPath string) uint64 {
	b, err := os.ReadFile(attemptsPath(dataPath))
	if err != nil {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (q *RetryQueue) bumpAttempts(dataPath string, n uint64) error {
	return os.WriteFile(attemptsPath(dataPath), []byte(strconv.FormatUint(n, 10)), 0o600)
}

// pendingFiles lists the queue's .dat entries in filename order (which,
// given the tx_<unix_ts>_... naming, is also creation order).
func (q *RetryQueue) pendingFiles() ([]string, error) {
	entries, err := os.ReadDir(q.Dir)
	if err != nil {
		return nil, errs.Wrap(err, "list asset-unlock rejections dir")
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".dat") {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// RetryAll attempts broadcast for every pending entry via client. An
// entry whose attempt count has already reached TTLAttempts is skipped —
// it stays on disk as a permanent audit record per the resolved open
// question, it is simply no longer retried automatically. Returns the
// number of entries successfully broadcast and removed.
func (q *RetryQueue) RetryAll(client Client) (succeeded int, err error) {
	files, err := q.pendingFiles()
	if err != nil {
		return 0, err
	}
	for _, name := range files {
		path := filepath.Join(q.Dir, name)
		attempts := q.attempts(path)
		if q.TTLAttempts > 0 && attempts >= q.TTLAttempts {
			continue
		}
		txBytes, readErr := os.ReadFile(path)
		if readErr != nil {
			continue
		}
		broadcastErr := client.BroadcastAssetUnlockTx(txBytes)
		if broadcastErr == nil {
			_ = os.Remove(path)
			_ = os.Remove(attemptsPath(path))
			succeeded++
			q.log.WithFields(logrus.Fields{"file": name}).Info("asset-unlock retry succeeded; removed from queue")
			continue
		}
		_ = q.bumpAttempts(path, attempts+1)
		q.log.WithFields(logrus.Fields{"file": name, "attempt": attempts + 1, "error": broadcastErr}).
			Warn("asset-unlock retry failed; left queued")
	}
	return succeeded, nil
}

// Pending reports how many entries remain queued, split by whether they
// have exhausted their retry budget.
func (q *RetryQueue) Pending() (active, expired int, err error) {
	files, err := q.pendingFiles()
	if err != nil {
		return 0, 0, err
	}
	for _, name := range files {
		path := filepath.Join(q.Dir, name)
		if q.TTLAttempts > 0 && q.attempts(path) >= q.TTLAttempts {
			expired++
		} else {
			active++
		}
	}
	return active, expired, nil
}
