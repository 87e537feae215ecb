package epoch

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/wire"
)

func encodeInfo(info *Info) []byte {
	e := wire.NewEncoder(wire.VersionV0)
	e.WriteUint64(info.Index)
	e.WriteUint64(info.StartBlockHeight)
	e.WriteUint64(info.StartBlockTimeMs)
	e.WriteUint32(info.StartCoreHeight)
	e.WriteUint64(info.ProcessingPool)
	e.WriteUint64(info.StoragePool)
	e.WriteUint64(info.EpochBlocks)
	e.WriteBool(info.Paid)
	e.WriteUint32(uint32(info.PayoutCursor))

	e.WriteUint32(uint32(len(info.ProposerOrder)))
	for _, id := range info.ProposerOrder {
		e.WriteBytes(id[:])
		e.WriteUint64(info.ProposerBlocks[id])
	}
	return e.Bytes()
}

func decodeInfo(data []byte) (*Info, error) {
	d, err := wire.NewDecoder(data)
	if err != nil {
		return nil, errs.Wrap(err, "decode epoch info")
	}
	if d.Version != wire.VersionV0 {
		return nil, errs.New(errs.KindUnknownVersionMismatch, 41001,
			"unrecognized epoch wire version", map[string]any{"version": d.Version})
	}

	info := &Info{ProposerBlocks: map[wire.ID]uint64{}}
	if info.Index, err = d.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode epoch index")
	}
	if info.StartBlockHeight, err = d.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode epoch start block height")
	}
	if info.StartBlockTimeMs, err = d.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode epoch start block time")
	}
	if info.StartCoreHeight, err = d.ReadUint32(); err != nil {
		return nil, errs.Wrap(err, "decode epoch start core height")
	}
	if info.ProcessingPool, err = d.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode processing pool")
	}
	if info.StoragePool, err = d.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode storage pool")
	}
	if info.EpochBlocks, err = d.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode epoch blocks")
	}
	if info.Paid, err = d.ReadBool(); err != nil {
		return nil, errs.Wrap(err, "decode epoch paid flag")
	}
	cursor, err := d.ReadUint32()
	if err != nil {
		return nil, errs.Wrap(err, "decode payout cursor")
	}
	info.PayoutCursor = int(cursor)

	nProposers, err := d.ReadUint32()
	if err != nil {
		return nil, errs.Wrap(err, "decode proposer count")
	}
	for i := uint32(0); i < nProposers; i++ {
		idBytes, err := d.ReadBytes()
		if err != nil {
			return nil, errs.Wrap(err, "decode proposer id")
		}
		var id wire.ID
		copy(id[:], idBytes)
		blocks, err := d.ReadUint64()
		if err != nil {
			return nil, errs.Wrap(err, "decode proposer blocks")
		}
		info.ProposerOrder = append(info.ProposerOrder, id)
		info.ProposerBlocks[id] = blocks
	}
	return info, nil
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

func decodeUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = (v << 8) | uint64(c)
	}
	return v
}
