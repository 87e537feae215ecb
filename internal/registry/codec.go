package registry

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/wire"
)

// EncodeContract serializes a DataContract with a version prefix. Only
// VersionV0 exists today; future schema changes get a new version byte
// and a new branch in DecodeContract, never a mutation of this one.
func EncodeContract(c *DataContract) []byte {
	e := wire.NewEncoder(wire.VersionV0)
	e.WriteBytes(c.ID[:])
	e.WriteBytes(c.OwnerID[:])
	e.WriteUint64(c.Version)
	e.WriteBool(c.Config.CanBeDeleted)
	e.WriteBool(c.Config.ReadOnly)
	e.WriteBool(c.Config.DocumentsMutable)
	e.WriteBool(c.Config.RequiresIdentityEncryptionBoundedKey)
	e.WriteUint32(uint32(len(c.Config.Keywords)))
	for _, k := range c.Config.Keywords {
		e.WriteString(k)
	}

	e.WriteUint32(uint32(len(c.DocumentTypes)))
	for name, dt := range c.DocumentTypes {
		e.WriteString(name)
		encodeDocumentType(e, dt)
	}

	e.WriteUint32(uint32(len(c.Tokens)))
	for _, tk := range c.Tokens {
		encodeTokenConfiguration(e, tk)
	}

	e.WriteString(c.MainGroupName)
	e.WriteUint32(uint32(len(c.Groups)))
	for name, g := range c.Groups {
		e.WriteString(name)
		e.WriteUint32(g.RequiredPower)
		e.WriteUint32(uint32(len(g.Members)))
		for id, power := range g.Members {
			e.WriteBytes(id[:])
			e.WriteUint32(power)
		}
	}
	return e.Bytes()
}

func encodeDocumentType(e *wire.Encoder, dt DocumentType) {
	e.WriteString(dt.Name)
	e.WriteBool(dt.Mutable)
	e.WriteBool(dt.CanBeDeleted)
	e.WriteBool(dt.DocumentsKeepHistory)
	e.WriteBool(dt.TransferableTo)

	e.WriteUint32(uint32(len(dt.Properties)))
	for name, ps := range dt.Properties {
		e.WriteString(name)
		e.WriteString(ps.Type)
		e.WriteUint32(uint32(ps.MaxBytes))
	}

	e.WriteUint32(uint32(len(dt.Required)))
	for _, r := range dt.Required {
		e.WriteString(r)
	}

	e.WriteUint32(uint32(len(dt.Indices)))
	for _, idx := range dt.Indices {
		e.WriteString(idx.Name)
		e.WriteBool(idx.Unique)
		e.WriteBool(idx.Contested)
		e.WriteUint32(uint32(len(idx.Properties)))
		for _, p := range idx.Properties {
			e.WriteString(p)
		}
	}

	e.WriteUint32(uint32(len(dt.TokenCosts)))
	for op, tc := range dt.TokenCosts {
		e.WriteString(op)
		e.WriteUint32(uint32(tc.TokenPosition))
		e.WriteUint64(tc.Amount)
	}
}

func encodeTokenConfiguration(e *wire.Encoder, tk TokenConfiguration) {
	e.WriteUint32(uint32(tk.Position))
	e.WriteUint64(tk.MaxSupply)
	e.WriteUint64(tk.BaseSupply)
	e.WriteBool(tk.MintingAllowed)
	e.WriteBool(tk.BurningAllowed)
	e.WriteBool(tk.FreezingAllowed)
	e.WriteBool(tk.DestroyFrozenAllowed)
	e.WriteBool(tk.DirectPurchaseEnabled)
	e.WriteBool(tk.PerpetualDistribution)
	e.WriteString(tk.ChangeControlGroupName)

	e.WriteUint32(uint32(len(tk.ChangeControlRules)))
	for op, rule := range tk.ChangeControlRules {
		e.WriteString(op)
		e.WriteUint32(uint32(rule.Actor))
		e.WriteString(rule.GroupName)
		e.WriteUint32(uint32(rule.AdminActor))
		e.WriteString(rule.AdminGroupName)
	}
}

// DecodeContract dispatches on the leading version byte. An unrecognized
// version fails closed with KindUnknownVersionMismatch rather than
// attempting a best-effort decode of a layout it was never taught.
func DecodeContract(data []byte) (*DataContract, error) {
	d, err := wire.NewDecoder(data)
	if err != nil {
		return nil, errs.Wrap(err, "decode contract")
	}
	switch d.Version {
	case wire.VersionV0:
		return decodeContractV0(d)
	default:
		return nil, errs.New(errs.KindUnknownVersionMismatch, 4401,
			"unrecognized data contract wire version", map[string]any{"version": d.Version})
	}
}

func decodeContractV0(d *wire.Decoder) (*DataContract, error) {
	idBytes, err := d.ReadBytes()
	if err != nil {
		return nil, errs.Wrap(err, "decode contract id")
	}
	ownerBytes, err := d.ReadBytes()
	if err != nil {
		return nil, errs.Wrap(err, "decode owner id")
	}
	version, err := d.ReadUint64()
	if err != nil {
		return nil, errs.Wrap(err, "decode contract version")
	}

	c := &DataContract{Version: version, DocumentTypes: map[string]DocumentType{}}
	copy(c.ID[:], idBytes)
	copy(c.OwnerID[:], ownerBytes)

	if c.Config.CanBeDeleted, err = d.ReadBool(); err != nil {
		return nil, errs.Wrap(err, "decode can_be_deleted")
	}
	if c.Config.ReadOnly, err = d.ReadBool(); err != nil {
		return nil, errs.Wrap(err, "decode read_only")
	}
	if c.Config.DocumentsMutable, err = d.ReadBool(); err != nil {
		return nil, errs.Wrap(err, "decode documents_mutable")
	}
	if c.Config.RequiresIdentityEncryptionBoundedKey, err = d.ReadBool(); err != nil {
		return nil, errs.Wrap(err, "decode requires_identity_encryption_bounded_key")
	}

	nKeywords, err := d.ReadUint32()
	if err != nil {
		return nil, errs.Wrap(err, "decode keyword count")
	}
	for i := uint32(0); i < nKeywords; i++ {
		kw, err := d.ReadString()
		if err != nil {
			return nil, errs.Wrap(err, "decode keyword")
		}
		c.Config.Keywords = append(c.Config.Keywords, kw)
	}

	nTypes, err := d.ReadUint32()
	if err != nil {
		return nil, errs.Wrap(err, "decode document type count")
	}
	for i := uint32(0); i < nTypes; i++ {
		name, err := d.ReadString()
		if err != nil {
			return nil, errs.Wrap(err, "decode document type name")
		}
		dt, err := decodeDocumentType(d)
		if err != nil {
			return nil, err
		}
		c.DocumentTypes[name] = dt
	}

	nTokens, err := d.ReadUint32()
	if err != nil {
		return nil, errs.Wrap(err, "decode token count")
	}
	for i := uint32(0); i < nTokens; i++ {
		tk, err := decodeTokenConfiguration(d)
		if err != nil {
			return nil, err
		}
		c.Tokens = append(c.Tokens, tk)
	}

	if c.MainGroupName, err = d.ReadString(); err != nil {
		return nil, errs.Wrap(err, "decode main group name")
	}
	nGroups, err := d.ReadUint32()
	if err != nil {
		return nil, errs.Wrap(err, "decode group count")
	}
	c.Groups = make(map[string]Group, nGroups)
	for i := uint32(0); i < nGroups; i++ {
		name, err := d.ReadString()
		if err != nil {
			return nil, errs.Wrap(err, "decode group name")
		}
		requiredPower, err := d.ReadUint32()
		if err != nil {
			return nil, errs.Wrap(err, "decode group required power")
		}
		nMembers, err := d.ReadUint32()
		if err != nil {
			return nil, errs.Wrap(err, "decode group member count")
		}
		g := Group{RequiredPower: requiredPower, Members: make(map[wire.ID]uint32, nMembers)}
		for j := uint32(0); j < nMembers; j++ {
			idBytes, err := d.ReadBytes()
			if err != nil {
				return nil, errs.Wrap(err, "decode group member id")
			}
			power, err := d.ReadUint32()
			if err != nil {
				return nil, errs.Wrap(err, "decode group member power")
			}
			var memberID wire.ID
			copy(memberID[:], idBytes)
			g.Members[memberID] = power
		}
		c.Groups[name] = g
	}
	return c, nil
}

func decodeDocumentType(d *wire.Decoder) (DocumentType, error) {
	var dt DocumentType
	var err error
	if dt.Name, err = d.ReadString(); err != nil {
		return dt, errs.Wrap(err, "decode document type name field")
	}
	if dt.Mutable, err = d.ReadBool(); err != nil {
		return dt, errs.Wrap(err, "decode mutable")
	}
	if dt.CanBeDeleted, err = d.ReadBool(); err != nil {
		return dt, errs.Wrap(err, "decode can_be_deleted")
	}
	if dt.DocumentsKeepHistory, err = d.ReadBool(); err != nil {
		return dt, errs.Wrap(err, "decode keep_history")
	}
	if dt.TransferableTo, err = d.ReadBool(); err != nil {
		return dt, errs.Wrap(err, "decode transferable")
	}

	nProps, err := d.ReadUint32()
	if err != nil {
		return dt, errs.Wrap(err, "decode property count")
	}
	dt.Properties = make(map[string]PropertySchema, nProps)
	for i := uint32(0); i < nProps; i++ {
		name, err := d.ReadString()
		if err != nil {
			return dt, errs.Wrap(err, "decode property name")
		}
		typ, err := d.ReadString()
		if err != nil {
			return dt, errs.Wrap(err, "decode property type")
		}
		maxBytes, err := d.ReadUint32()
		if err != nil {
			return dt, errs.Wrap(err, "decode property max bytes")
		}
		dt.Properties[name] = PropertySchema{Type: typ, MaxBytes: int(maxBytes)}
	}

	nRequired, err := d.ReadUint32()
	if err != nil {
		return dt, errs.Wrap(err, "decode required count")
	}
	for i := uint32(0); i < nRequired; i++ {
		r, err := d.ReadString()
		if err != nil {
			return dt, errs.Wrap(err, "decode required field")
		}
		dt.Required = append(dt.Required, r)
	}

	nIndices, err := d.ReadUint32()
	if err != nil {
		return dt, errs.Wrap(err, "decode index count")
	}
	for i := uint32(0); i < nIndices; i++ {
		var idx Index
		if idx.Name, err = d.ReadString(); err != nil {
			return dt, errs.Wrap(err, "decode index name")
		}
		if idx.Unique, err = d.ReadBool(); err != nil {
			return dt, errs.Wrap(err, "decode index unique")
		}
		if idx.Contested, err = d.ReadBool(); err != nil {
			return dt, errs.Wrap(err, "decode index contested")
		}
		nProps, err := d.ReadUint32()
		if err != nil {
			return dt, errs.Wrap(err, "decode index property count")
		}
		for j := uint32(0); j < nProps; j++ {
			p, err := d.ReadString()
			if err != nil {
				return dt, errs.Wrap(err, "decode index property")
			}
			idx.Properties = append(idx.Properties, p)
		}
		dt.Indices = append(dt.Indices, idx)
	}

	nCosts, err := d.ReadUint32()
	if err != nil {
		return dt, errs.Wrap(err, "decode token cost count")
	}
	dt.TokenCosts = make(map[string]TokenCost, nCosts)
	for i := uint32(0); i < nCosts; i++ {
		op, err := d.ReadString()
		if err != nil {
			return dt, errs.Wrap(err, "decode token cost op")
		}
		pos, err := d.ReadUint32()
		if err != nil {
			return dt, errs.Wrap(err, "decode token cost position")
		}
		amt, err := d.ReadUint64()
		if err != nil {
			return dt, errs.Wrap(err, "decode token cost amount")
		}
		dt.TokenCosts[op] = TokenCost{TokenPosition: uint16(pos), Amount: amt}
	}
	return dt, nil
}

func decodeTokenConfiguration(d *wire.Decoder) (TokenConfiguration, error) {
	var tk TokenConfiguration
	var err error
	var pos uint32
	if pos, err = d.ReadUint32(); err != nil {
		return tk, errs.Wrap(err, "decode token position")
	}
	tk.Position = uint16(pos)
	if tk.MaxSupply, err = d.ReadUint64(); err != nil {
		return tk, errs.Wrap(err, "decode max supply")
	}
	if tk.BaseSupply, err = d.ReadUint64(); err != nil {
		return tk, errs.Wrap(err, "decode base supply")
	}
	if tk.MintingAllowed, err = d.ReadBool(); err != nil {
		return tk, errs.Wrap(err, "decode minting allowed")
	}
	if tk.BurningAllowed, err = d.ReadBool(); err != nil {
		return tk, errs.Wrap(err, "decode burning allowed")
	}
	if tk.FreezingAllowed, err = d.ReadBool(); err != nil {
		return tk, errs.Wrap(err, "decode freezing allowed")
	}
	if tk.DestroyFrozenAllowed, err = d.ReadBool(); err != nil {
		return tk, errs.Wrap(err, "decode destroy frozen allowed")
	}
	if tk.DirectPurchaseEnabled, err = d.ReadBool(); err != nil {
		return tk, errs.Wrap(err, "decode direct purchase enabled")
	}
	if tk.PerpetualDistribution, err = d.ReadBool(); err != nil {
		return tk, errs.Wrap(err, "decode perpetual distribution")
	}
	if tk.ChangeControlGroupName, err = d.ReadString(); err != nil {
		return tk, errs.Wrap(err, "decode change control group name")
	}

	nRules, err := d.ReadUint32()
	if err != nil {
		return tk, errs.Wrap(err, "decode change control rule count")
	}
	tk.ChangeControlRules = make(map[string]ChangeControlRule, nRules)
	for i := uint32(0); i < nRules; i++ {
		op, err := d.ReadString()
		if err != nil {
			return tk, errs.Wrap(err, "decode change control rule op")
		}
		var rule ChangeControlRule
		actor, err := d.ReadUint32()
		if err != nil {
			return tk, errs.Wrap(err, "decode change control rule actor")
		}
		rule.Actor = ActorKind(actor)
		if rule.GroupName, err = d.ReadString(); err != nil {
			return tk, errs.Wrap(err, "decode change control rule group name")
		}
		adminActor, err := d.ReadUint32()
		if err != nil {
			return tk, errs.Wrap(err, "decode change control rule admin actor")
		}
		rule.AdminActor = ActorKind(adminActor)
		if rule.AdminGroupName, err = d.ReadString(); err != nil {
			return tk, errs.Wrap(err, "decode change control rule admin group name")
		}
		tk.ChangeControlRules[op] = rule
	}
	return tk, nil
}
