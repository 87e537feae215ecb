package identity

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/wire"
)

// Encode serializes an Identity with a version prefix.
func Encode(id *Identity) []byte {
	e := wire.NewEncoder(wire.VersionV0)
	e.WriteBytes(id.ID[:])
	e.WriteUint64(id.Balance)
	e.WriteUint64(id.Revision)
	e.WriteUint64(id.Nonce)

	e.WriteUint32(uint32(len(id.Keys)))
	for _, k := range id.Keys {
		e.WriteUint32(k.ID)
		e.WriteUint32(uint32(k.Purpose))
		e.WriteUint32(uint32(k.SecurityLevel))
		e.WriteUint32(uint32(k.Type))
		e.WriteBytes(k.Data)
		e.WriteUint64(k.DisabledAt)
		e.WriteBool(k.ContractBound != nil)
		if k.ContractBound != nil {
			e.WriteBytes(k.ContractBound[:])
		}
	}

	e.WriteUint32(uint32(len(id.ContractNonces)))
	for cid, nonce := range id.ContractNonces {
		e.WriteBytes(cid[:])
		e.WriteUint64(nonce)
	}
	return e.Bytes()
}

// Decode dispatches on the leading version byte.
func Decode(data []byte) (*Identity, error) {
	d, err := wire.NewDecoder(data)
	if err != nil {
		return nil, errs.Wrap(err, "decode identity")
	}
	switch d.Version {
	case wire.VersionV0:
		return decodeV0(d)
	default:
		return nil, errs.New(errs.KindUnknownVersionMismatch, 4640,
			"unrecognized identity wire version", map[string]any{"version": d.Version})
	}
}

func decodeV0(d *wire.Decoder) (*Identity, error) {
	idBytes, err := d.ReadBytes()
	if err != nil {
		return nil, errs.Wrap(err, "decode identity id")
	}
	id := &Identity{Keys: map[uint32]Key{}, ContractNonces: map[wire.ID]uint64{}}
	copy(id.ID[:], idBytes)

	if id.Balance, err = d.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode balance")
	}
	if id.Revision, err = d.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode revision")
	}
	if id.Nonce, err = d.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode nonce")
	}

	nKeys, err := d.ReadUint32()
	if err != nil {
		return nil, errs.Wrap(err, "decode key count")
	}
	for i := uint32(0); i < nKeys; i++ {
		var k Key
		keyID, err := d.ReadUint32()
		if err != nil {
			return nil, errs.Wrap(err, "decode key id")
		}
		k.ID = keyID
		purpose, err := d.ReadUint32()
		if err != nil {
			return nil, errs.Wrap(err, "decode key purpose")
		}
		k.Purpose = KeyPurpose(purpose)
		level, err := d.ReadUint32()
		if err != nil {
			return nil, errs.Wrap(err, "decode key security level")
		}
		k.SecurityLevel = SecurityLevel(level)
		typ, err := d.ReadUint32()
		if err != nil {
			return nil, errs.Wrap(err, "decode key type")
		}
		k.Type = KeyType(typ)
		if k.Data, err = d.ReadBytes(); err != nil {
			return nil, errs.Wrap(err, "decode key data")
		}
		if k.DisabledAt, err = d.ReadUint64(); err != nil {
			return nil, errs.Wrap(err, "decode key disabled_at")
		}
		hasBound, err := d.ReadBool()
		if err != nil {
			return nil, errs.Wrap(err, "decode key contract-bound flag")
		}
		if hasBound {
			boundBytes, err := d.ReadBytes()
			if err != nil {
				return nil, errs.Wrap(err, "decode key contract bound id")
			}
			var bound wire.ID
			copy(bound[:], boundBytes)
			k.ContractBound = &bound
		}
		id.Keys[k.ID] = k
	}

	nNonces, err := d.ReadUint32()
	if err != nil {
		return nil, errs.Wrap(err, "decode contract nonce count")
	}
	for i := uint32(0); i < nNonces; i++ {
		cidBytes, err := d.ReadBytes()
		if err != nil {
			return nil, errs.Wrap(err, "decode contract nonce id")
		}
		nonce, err := d.ReadUint64()
		if err != nil {
			return nil, errs.Wrap(err, "decode contract nonce value")
		}
		var cid wire.ID
		copy(cid[:], cidBytes)
		id.ContractNonces[cid] = nonce
	}
	return id, nil
}
