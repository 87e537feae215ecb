package token

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/wire"
)

func encodeGroupActionState(st GroupActionState) []byte {
	e := wire.NewEncoder(wire.VersionV0)
	e.WriteUint32(uint32(len(st.Signers)))
	for id, power := range st.Signers {
		e.WriteBytes(id[:])
		e.WriteUint32(power)
	}
	return e.Bytes()
}

func decodeGroupActionState(data []byte) (GroupActionState, error) {
	d, err := wire.NewDecoder(data)
	if err != nil {
		return GroupActionState{}, errs.Wrap(err, "decode group action state")
	}
	if d.Version != wire.VersionV0 {
		return GroupActionState{}, errs.New(errs.KindUnknownVersionMismatch, 4813,
			"unrecognized group action wire version", map[string]any{"version": d.Version})
	}
	n, err := d.ReadUint32()
	if err != nil {
		return GroupActionState{}, errs.Wrap(err, "decode group action signer count")
	}
	st := GroupActionState{Signers: make(map[wire.ID]uint32, n)}
	for i := uint32(0); i < n; i++ {
		idBytes, err := d.ReadBytes()
		if err != nil {
			return GroupActionState{}, errs.Wrap(err, "decode group action signer id")
		}
		power, err := d.ReadUint32()
		if err != nil {
			return GroupActionState{}, errs.Wrap(err, "decode group action signer power")
		}
		var id wire.ID
		copy(id[:], idBytes)
		st.Signers[id] = power
	}
	return st, nil
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

func encodeBalance(bal Balance) []byte {
	e := wire.NewEncoder(wire.VersionV0)
	e.WriteUint64(bal.Amount)
	e.WriteUint64(bal.Frozen)
	return e.Bytes()
}

func decodeBalance(data []byte) (Balance, error) {
	d, err := wire.NewDecoder(data)
	if err != nil {
		return Balance{}, errs.Wrap(err, "decode token balance")
	}
	if d.Version != wire.VersionV0 {
		return Balance{}, errs.New(errs.KindUnknownVersionMismatch, 4811,
			"unrecognized token balance wire version", map[string]any{"version": d.Version})
	}
	var bal Balance
	if bal.Amount, err = d.ReadUint64(); err != nil {
		return Balance{}, errs.Wrap(err, "decode balance amount")
	}
	if bal.Frozen, err = d.ReadUint64(); err != nil {
		return Balance{}, errs.Wrap(err, "decode balance frozen")
	}
	return bal, nil
}

func encodeEvent(ev Event) []byte {
	e := wire.NewEncoder(wire.VersionV0)
	e.WriteString(ev.Kind)
	e.WriteUint32(uint32(ev.Position))
	e.WriteBytes(ev.Actor[:])
	e.WriteBytes(ev.Target[:])
	e.WriteUint64(ev.Amount)
	e.WriteUint64(ev.Sequence)
	e.WriteUint64(ev.BlockTime)
	return e.Bytes()
}

func decodeEvent(data []byte) (Event, error) {
	d, err := wire.NewDecoder(data)
	if err != nil {
		return Event{}, errs.Wrap(err, "decode token event")
	}
	if d.Version != wire.VersionV0 {
		return Event{}, errs.New(errs.KindUnknownVersionMismatch, 4812,
			"unrecognized token event wire version", map[string]any{"version": d.Version})
	}
	var ev Event
	if ev.Kind, err = d.ReadString(); err != nil {
		return Event{}, errs.Wrap(err, "decode event kind")
	}
	pos, err := d.ReadUint32()
	if err != nil {
		return Event{}, errs.Wrap(err, "decode event position")
	}
	ev.Position = uint16(pos)
	actorBytes, err := d.ReadBytes()
	if err != nil {
		return Event{}, errs.Wrap(err, "decode event actor")
	}
	copy(ev.Actor[:], actorBytes)
	targetBytes, err := d.ReadBytes()
	if err != nil {
		return Event{}, errs.Wrap(err, "decode event target")
	}
	copy(ev.Target[:], targetBytes)
	if ev.Amount, err = d.ReadUint64(); err != nil {
		return Event{}, errs.Wrap(err, "decode event amount")
	}
	if ev.Sequence, err = d.ReadUint64(); err != nil {
		return Event{}, errs.Wrap(err, "decode event sequence")
	}
	if ev.BlockTime, err = d.ReadUint64(); err != nil {
		return Event{}, errs.Wrap(err, "decode event block time")
	}
	return ev, nil
}
