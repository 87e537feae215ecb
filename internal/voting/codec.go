package voting

import (
	"bytes"
	"sort"

	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/wire"
)

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

func encodePoll(p *Poll) []byte {
	e := wire.NewEncoder(wire.VersionV0)
	e.WriteBytes(p.ContractID[:])
	e.WriteString(p.TypeName)
	e.WriteString(p.IndexName)
	e.WriteBytes(p.IndexKey)
	e.WriteUint32(uint32(p.Status))
	e.WriteUint64(p.StartBlock)
	e.WriteUint64(p.EndBlock)
	e.WriteUint64(p.AbstainTally)
	e.WriteUint64(p.LockTally)
	e.WriteBytes(p.AwardedTo[:])
	e.WriteBytes(p.AwardedDocument[:])
	e.WriteUint32(p.LockCount)

	e.WriteUint32(uint32(len(p.Contenders)))
	for _, c := range p.Contenders {
		e.WriteBytes(c.DocumentID[:])
		e.WriteBytes(c.OwnerID[:])
		e.WriteUint64(c.LockedCredits)
		e.WriteUint64(c.Tally)
	}

	// Voters are written in sorted id order so identical poll state always
	// encodes to identical bytes.
	voters := make([]wire.ID, 0, len(p.Voters))
	for voter := range p.Voters {
		voters = append(voters, voter)
	}
	sort.Slice(voters, func(i, j int) bool { return bytes.Compare(voters[i][:], voters[j][:]) < 0 })
	e.WriteUint32(uint32(len(voters)))
	for _, voter := range voters {
		choice := p.Voters[voter]
		e.WriteBytes(voter[:])
		e.WriteBytes(choice[:])
	}
	return e.Bytes()
}

func decodePoll(data []byte) (*Poll, error) {
	d, err := wire.NewDecoder(data)
	if err != nil {
		return nil, errs.Wrap(err, "decode poll")
	}
	if d.Version != wire.VersionV0 {
		return nil, errs.New(errs.KindUnknownVersionMismatch, 4911,
			"unrecognized poll wire version", map[string]any{"version": d.Version})
	}

	p := &Poll{Voters: map[wire.ID]wire.ID{}}
	contractBytes, err := d.ReadBytes()
	if err != nil {
		return nil, errs.Wrap(err, "decode poll contract id")
	}
	copy(p.ContractID[:], contractBytes)

	if p.TypeName, err = d.ReadString(); err != nil {
		return nil, errs.Wrap(err, "decode poll type name")
	}
	if p.IndexName, err = d.ReadString(); err != nil {
		return nil, errs.Wrap(err, "decode poll index name")
	}
	if p.IndexKey, err = d.ReadBytes(); err != nil {
		return nil, errs.Wrap(err, "decode poll index key")
	}
	status, err := d.ReadUint32()
	if err != nil {
		return nil, errs.Wrap(err, "decode poll status")
	}
	p.Status = Status(status)
	if p.StartBlock, err = d.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode poll start block")
	}
	if p.EndBlock, err = d.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode poll end block")
	}
	if p.AbstainTally, err = d.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode poll abstain tally")
	}
	if p.LockTally, err = d.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode poll lock tally")
	}
	awardedBytes, err := d.ReadBytes()
	if err != nil {
		return nil, errs.Wrap(err, "decode poll awarded to")
	}
	copy(p.AwardedTo[:], awardedBytes)
	awardedDocBytes, err := d.ReadBytes()
	if err != nil {
		return nil, errs.Wrap(err, "decode poll awarded document")
	}
	copy(p.AwardedDocument[:], awardedDocBytes)
	if p.LockCount, err = d.ReadUint32(); err != nil {
		return nil, errs.Wrap(err, "decode poll lock count")
	}

	nContenders, err := d.ReadUint32()
	if err != nil {
		return nil, errs.Wrap(err, "decode poll contender count")
	}
	for i := uint32(0); i < nContenders; i++ {
		var c Contender
		docBytes, err := d.ReadBytes()
		if err != nil {
			return nil, errs.Wrap(err, "decode contender document id")
		}
		copy(c.DocumentID[:], docBytes)
		ownerBytes, err := d.ReadBytes()
		if err != nil {
			return nil, errs.Wrap(err, "decode contender owner id")
		}
		copy(c.OwnerID[:], ownerBytes)
		if c.LockedCredits, err = d.ReadUint64(); err != nil {
			return nil, errs.Wrap(err, "decode contender locked credits")
		}
		if c.Tally, err = d.ReadUint64(); err != nil {
			return nil, errs.Wrap(err, "decode contender tally")
		}
		p.Contenders = append(p.Contenders, c)
	}

	nVoters, err := d.ReadUint32()
	if err != nil {
		return nil, errs.Wrap(err, "decode poll voter count")
	}
	for i := uint32(0); i < nVoters; i++ {
		voterBytes, err := d.ReadBytes()
		if err != nil {
			return nil, errs.Wrap(err, "decode voter id")
		}
		choiceBytes, err := d.ReadBytes()
		if err != nil {
			return nil, errs.Wrap(err, "decode voter choice")
		}
		var voter, choice wire.ID
		copy(voter[:], voterBytes)
		copy(choice[:], choiceBytes)
		p.Voters[voter] = choice
	}
	return p, nil
}
