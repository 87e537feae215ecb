package document

import (
	"encoding/json"

	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/wire"
)

// Encode serializes a Document with a version prefix. Document property
// bodies are JSON; the platform's documents are JSON-schema-derived to
// begin with.
func Encode(d *Document) ([]byte, error) {
	propBytes, err := json.Marshal(d.Properties)
	if err != nil {
		return nil, errs.Wrap(err, "marshal document properties")
	}

	e := wire.NewEncoder(wire.VersionV0)
	e.WriteBytes(d.ID[:])
	e.WriteBytes(d.ContractID[:])
	e.WriteString(d.TypeName)
	e.WriteBytes(d.OwnerID[:])
	e.WriteUint64(d.Revision)
	e.WriteBytes(propBytes)
	e.WriteUint64(d.Price)
	e.WriteUint64(d.CreatedAtMs)
	e.WriteUint64(d.UpdatedAtMs)
	e.WriteUint64(d.TransferredAtMs)
	e.WriteUint64(d.CreatedAtBlock)
	e.WriteUint64(d.UpdatedAtBlock)
	e.WriteUint64(d.TransferredAtBlock)
	return e.Bytes(), nil
}

// Decode dispatches on the leading version byte.
func Decode(data []byte) (*Document, error) {
	d, err := wire.NewDecoder(data)
	if err != nil {
		return nil, errs.Wrap(err, "decode document")
	}
	switch d.Version {
	case wire.VersionV0:
		return decodeV0(d)
	default:
		return nil, errs.New(errs.KindUnknownVersionMismatch, 4720,
			"unrecognized document wire version", map[string]any{"version": d.Version})
	}
}

func decodeV0(dec *wire.Decoder) (*Document, error) {
	doc := &Document{}
	idBytes, err := dec.ReadBytes()
	if err != nil {
		return nil, errs.Wrap(err, "decode document id")
	}
	copy(doc.ID[:], idBytes)

	contractBytes, err := dec.ReadBytes()
	if err != nil {
		return nil, errs.Wrap(err, "decode contract id")
	}
	copy(doc.ContractID[:], contractBytes)

	if doc.TypeName, err = dec.ReadString(); err != nil {
		return nil, errs.Wrap(err, "decode type name")
	}

	ownerBytes, err := dec.ReadBytes()
	if err != nil {
		return nil, errs.Wrap(err, "decode owner id")
	}
	copy(doc.OwnerID[:], ownerBytes)

	if doc.Revision, err = dec.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode revision")
	}

	propBytes, err := dec.ReadBytes()
	if err != nil {
		return nil, errs.Wrap(err, "decode properties")
	}
	doc.Properties = map[string]any{}
	if len(propBytes) > 0 {
		if err := json.Unmarshal(propBytes, &doc.Properties); err != nil {
			return nil, errs.Wrap(err, "unmarshal document properties")
		}
	}

	if doc.Price, err = dec.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode price")
	}
	if doc.CreatedAtMs, err = dec.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode created_at_ms")
	}
	if doc.UpdatedAtMs, err = dec.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode updated_at_ms")
	}
	if doc.TransferredAtMs, err = dec.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode transferred_at_ms")
	}
	if doc.CreatedAtBlock, err = dec.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode created_at_block")
	}
	if doc.UpdatedAtBlock, err = dec.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode updated_at_block")
	}
	if doc.TransferredAtBlock, err = dec.ReadUint64(); err != nil {
		return nil, errs.Wrap(err, "decode transferred_at_block")
	}
	return doc, nil
}
