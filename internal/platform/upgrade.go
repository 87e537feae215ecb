package platform

import (
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// Protocol upgrades are signaled one proposer at a time: each block
// proposer may declare the next protocol version it supports, and the
// consensus driver switches the platform's protocol version once enough
// of the active proposer set has signaled the same candidate. The
// signals and per-version tallies live under the Versions subtree so
// they are part of the proven state like everything else.

func versionSignalsPath() store.Path {
	return store.Path{store.TagVersions, []byte("signals")}
}

func versionCountsPath() store.Path {
	return store.Path{store.TagVersions, []byte("counts")}
}

func versionKey(version uint32) []byte {
	return []byte{byte(version >> 24), byte(version >> 16), byte(version >> 8), byte(version)}
}

// RecordVersionSignal stores proposer's signaled next protocol version,
// replacing (and un-counting) any version it signaled before.
func RecordVersionSignal(t *store.Transaction, proposer wire.ID, version uint32) (store.Cost, error) {
	var total store.Cost

	prev, found, err := t.Get(versionSignalsPath(), proposer[:])
	if err != nil {
		return store.Cost{}, err
	}
	if found && len(prev.Item) == 4 {
		prevVersion := uint32(prev.Item[0])<<24 | uint32(prev.Item[1])<<16 | uint32(prev.Item[2])<<8 | uint32(prev.Item[3])
		if prevVersion == version {
			return store.Cost{}, nil
		}
		count, err := VersionSignalCount(t, prevVersion)
		if err != nil {
			return store.Cost{}, err
		}
		if count > 0 {
			cost, err := setVersionCount(t, prevVersion, count-1)
			if err != nil {
				return store.Cost{}, err
			}
			total.Seeks += cost.Seeks
			total.StorageAddedBytes += cost.StorageAddedBytes
			total.StorageReplacedBytes += cost.StorageReplacedBytes
		}
	}

	cost, err := store.Insert(t, nil, store.ModeApply, versionSignalsPath(), proposer[:],
		store.Element{Kind: store.KindItem, Item: versionKey(version)}, store.DefaultMergeHook(0))
	if err != nil {
		return store.Cost{}, err
	}
	total.Seeks += cost.Seeks
	total.StorageAddedBytes += cost.StorageAddedBytes
	total.StorageReplacedBytes += cost.StorageReplacedBytes

	count, err := VersionSignalCount(t, version)
	if err != nil {
		return store.Cost{}, err
	}
	cost, err = setVersionCount(t, version, count+1)
	if err != nil {
		return store.Cost{}, err
	}
	total.Seeks += cost.Seeks
	total.StorageAddedBytes += cost.StorageAddedBytes
	total.StorageReplacedBytes += cost.StorageReplacedBytes
	return total, nil
}

// VersionSignalCount returns how many proposers currently signal version.
func VersionSignalCount(t *store.Transaction, version uint32) (uint64, error) {
	el, found, err := t.Get(versionCountsPath(), versionKey(version))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	var count uint64
	for _, b := range el.Item {
		count = count<<8 | uint64(b)
	}
	return count, nil
}

func setVersionCount(t *store.Transaction, version uint32, count uint64) (store.Cost, error) {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(count)
		count >>= 8
	}
	return store.Insert(t, nil, store.ModeApply, versionCountsPath(), versionKey(version),
		store.Element{Kind: store.KindItem, Item: buf}, store.DefaultMergeHook(0))
}
