// Package registry implements the data-model registry: data contracts,
// document types, indices, and token configurations, served from a
// bounded, transaction-snapshotted cache.
package registry

import (
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// Index is an ordered list of property references with optional
// uniqueness and contested-resolution flags. A contested index routes
// conflicting inserts through the voting subsystem instead of rejecting
// them outright.
type Index struct {
	Name       string
	Properties []string
	Unique     bool
	Contested  bool
}

// PropertySchema is a minimal JSON-schema-derived property descriptor:
// enough to validate a document's shape without pulling in a full JSON
// Schema validator.
type PropertySchema struct {
	Type     string // "string", "integer", "number", "boolean", "array", "object", "bytes"
	MaxBytes int    // 0 = unbounded
}

// TokenCost attaches a token debit to a document-type operation (e.g.
// "create" costs 5 units of token at Position 0).
type TokenCost struct {
	TokenPosition uint16
	Amount        uint64
}

// DocumentType fixes a name, a property schema, required fields, an
// ordered list of indices, mutability/deletion defaults, and
// history-retention behavior.
type DocumentType struct {
	Name                 string
	Properties           map[string]PropertySchema
	Required             []string
	Indices              []Index
	Mutable              bool
	CanBeDeleted         bool
	DocumentsKeepHistory bool
	TransferableTo       bool // documents of this type may carry ownership transfer
	TokenCosts           map[string]TokenCost
}

func (dt DocumentType) indexNamed(name string) (Index, bool) {
	for _, idx := range dt.Indices {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// IndexFor looks up a named index on a document type by name.
func (dt DocumentType) IndexFor(name string) (Index, bool) { return dt.indexNamed(name) }

// TokenConfiguration records the rules governing one token attached to a
// contract at a fixed position.
type TokenConfiguration struct {
	Position               uint16
	MaxSupply              uint64 // 0 = unlimited
	BaseSupply             uint64
	MintingAllowed         bool
	BurningAllowed         bool
	FreezingAllowed        bool
	DestroyFrozenAllowed   bool
	DirectPurchaseEnabled  bool
	PerpetualDistribution  bool
	ChangeControlGroupName string // empty = owner-only change control

	// ChangeControlRules maps an operation name (mint, burn, freeze,
	// unfreeze, destroyFrozen, transfer, emergencyAction, configUpdate,
	// directPurchasePrice) to the rule governing who may invoke it and
	// who may change that rule. An operation absent from the map falls
	// back to owner-only.
	ChangeControlRules map[string]ChangeControlRule
}

// ActorKind names who may act under a change control rule.
type ActorKind int

const (
	ActorOwner ActorKind = iota
	ActorMainGroup
	ActorNamedGroup
	ActorAnyone
)

// ChangeControlRule pairs an authorized actor for an operation with a
// (possibly distinct) actor authorized to change the rule itself.
type ChangeControlRule struct {
	Actor          ActorKind
	GroupName      string // meaningful only when Actor == ActorNamedGroup
	AdminActor     ActorKind
	AdminGroupName string
}

// Group is a named set of identities with per-member signing power and
// a threshold; a group action executes once the aggregate power of its
// distinct signers meets or exceeds RequiredPower.
type Group struct {
	Members       map[wire.ID]uint32
	RequiredPower uint32
}

// DataContract binds an identifier to a document schema, a set of
// document types, optional token configurations, and governance
// metadata. The contract id is derived from owner id + entropy at
// creation time and never changes.
type DataContract struct {
	ID            wire.ID
	OwnerID       wire.ID
	Version       uint64 // contract-level revision, bumped on ContractUpdate
	DocumentTypes map[string]DocumentType
	Tokens        []TokenConfiguration
	Config        ContractConfig
	Groups        map[string]Group
	MainGroupName string // empty = no designated main control group
}

// ContractConfig carries contract-wide governance switches.
type ContractConfig struct {
	CanBeDeleted      bool
	ReadOnly          bool
	Keywords          []string
	DocumentsMutable  bool
	RequiresIdentityEncryptionBoundedKey bool
}

func (c *DataContract) DocumentType(name string) (DocumentType, bool) {
	dt, ok := c.DocumentTypes[name]
	return dt, ok
}

func (c *DataContract) Token(position uint16) (TokenConfiguration, bool) {
	for _, t := range c.Tokens {
		if t.Position == position {
			return t, true
		}
	}
	return TokenConfiguration{}, false
}

// FetchInfo is what the registry hands back for a contract lookup: the
// deserialized contract, the storage flags it was stored under (needed
// for refund attribution if it is ever rewritten), the cost charged to
// load it, and — once a caller has run a fee calculation against it — the
// resulting fee result, cached so a second lookup in the same transition
// does not recompute it.
type FetchInfo struct {
	Contract *DataContract
	Flags    store.Flags
	LoadCost store.Cost
	FeeHint  *FeeHint
}

// FeeHint is an optional pre-calculated fee result a caller may stash
// against a FetchInfo after the first charge, so repeat lookups in the
// same transition don't recompute it. Declared locally to avoid a cyclic
// import on internal/fees; callers translate to/from fees.Result.
type FeeHint struct {
	ProcessingFee uint64
	StorageFee    uint64
}
