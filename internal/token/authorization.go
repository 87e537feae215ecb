package token

import (
	"crypto/sha256"

	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/registry"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// ruleFor returns the change control rule governing op, falling back to
// owner-only when the contract declares none.
func ruleFor(cfg registry.TokenConfiguration, op string) registry.ChangeControlRule {
	if rule, ok := cfg.ChangeControlRules[op]; ok {
		return rule
	}
	return registry.ChangeControlRule{Actor: registry.ActorOwner}
}

// authorizeDirect checks an Owner/MainGroup/NamedGroup/Anyone rule
// against a single signing identity, for operations that do not go
// through group-action power accumulation (a single signature either
// satisfies the rule or it doesn't).
func authorizeDirect(contract *registry.DataContract, rule registry.ChangeControlRule, signer wire.ID) error {
	switch rule.Actor {
	case registry.ActorAnyone:
		return nil
	case registry.ActorOwner:
		if signer == contract.OwnerID {
			return nil
		}
	case registry.ActorMainGroup, registry.ActorNamedGroup:
		name := rule.GroupName
		if rule.Actor == registry.ActorMainGroup {
			name = contract.MainGroupName
		}
		group, ok := contract.Groups[name]
		if !ok {
			return errs.New(errs.KindStructure, 4820, "change control rule references unknown group",
				map[string]any{"group": name})
		}
		if _, isMember := group.Members[signer]; isMember {
			return nil
		}
	}
	return errs.New(errs.KindUnauthorizedTokenAction, 4821, "signer not authorized for this token operation", nil)
}

// GroupActionState accumulates signer power for a pending group action
// keyed by (contract, token position, op, action id). Recording which
// identity signed — not just a running power total — keeps a single
// signer from inflating their own weight by re-signing the same action.
type GroupActionState struct {
	Signers map[wire.ID]uint32
}

func groupActionPath(contractID wire.ID, position uint16, op string, actionID []byte) store.Path {
	return store.Path{store.TagGroupActions, append([]byte{}, contractID[:]...), positionKey(position), []byte(op)}
}

func loadGroupAction(t *store.Transaction, contractID wire.ID, position uint16, op string, actionID []byte) (GroupActionState, error) {
	el, found, err := t.Get(groupActionPath(contractID, position, op, actionID), actionID)
	if err != nil {
		return GroupActionState{}, err
	}
	if !found {
		return GroupActionState{Signers: map[wire.ID]uint32{}}, nil
	}
	return decodeGroupActionState(el.Item)
}

// saveGroupAction persists st, attributing a fresh action record's
// storage bytes to signer — the identity whose vote caused this write —
// paid for by epoch. Subsequent votes on the same action go through the
// merge hook, which combines epoch ranges rather than re-attributing the
// whole record to the latest signer.
func saveGroupAction(t *store.Transaction, contractID wire.ID, position uint16, op string, actionID []byte, st GroupActionState, signer wire.ID, epoch uint64) (store.Cost, error) {
	encoded := encodeGroupActionState(st)
	el := store.Element{Kind: store.KindItem, Item: encoded, Flags: store.NewFlags(signer, epoch, uint32(len(encoded)))}
	return store.Insert(t, nil, store.ModeApply, groupActionPath(contractID, position, op, actionID), actionID,
		el, store.DefaultMergeHook(epoch))
}

// actionID derives the identity of one pending group action from the
// operation and its parameters, so every group member signing the same
// "mint 100 to X" accumulates power on the same record while a different
// amount or recipient opens a separate one.
func actionID(contractID wire.ID, position uint16, op string, params ...[]byte) []byte {
	h := sha256.New()
	h.Write(contractID[:])
	h.Write(positionKey(position))
	h.Write([]byte(op))
	for _, p := range params {
		h.Write([]byte{byte(len(p))})
		h.Write(p)
	}
	return h.Sum(nil)
}

// authorize gates op behind its change control rule. Owner and Anyone
// rules resolve on the single signature. Group rules accumulate
// distinct-signer power under the action id derived from params; ready
// is false until the aggregate crosses the group's threshold, and the
// signature that crosses it executes the action.
func authorize(t *store.Transaction, contract *registry.DataContract, cfg registry.TokenConfiguration, op string, signer wire.ID, epoch uint64, params ...[]byte) (ready bool, cost store.Cost, err error) {
	rule := ruleFor(cfg, op)
	if rule.Actor == registry.ActorOwner || rule.Actor == registry.ActorAnyone {
		if err := authorizeDirect(contract, rule, signer); err != nil {
			return false, store.Cost{}, err
		}
		return true, store.Cost{}, nil
	}
	return authorizeGroupAction(t, contract, rule, cfg.Position, op, actionID(contract.ID, cfg.Position, op, params...), signer, epoch)
}

// authorizeGroupAction records signer's vote for actionID and reports
// whether the aggregate distinct-signer power has crossed the group's
// threshold. A signer recorded twice does not double count.
func authorizeGroupAction(t *store.Transaction, contract *registry.DataContract, rule registry.ChangeControlRule, position uint16, op string, actionID []byte, signer wire.ID, epoch uint64) (bool, store.Cost, error) {
	if rule.Actor == registry.ActorOwner || rule.Actor == registry.ActorAnyone {
		if err := authorizeDirect(contract, rule, signer); err != nil {
			return false, store.Cost{}, err
		}
		return true, store.Cost{}, nil
	}
	name := rule.GroupName
	if rule.Actor == registry.ActorMainGroup {
		name = contract.MainGroupName
	}
	group, ok := contract.Groups[name]
	if !ok {
		return false, store.Cost{}, errs.New(errs.KindStructure, 4822, "group action references unknown group",
			map[string]any{"group": name})
	}
	power, isMember := group.Members[signer]
	if !isMember {
		return false, store.Cost{}, errs.New(errs.KindUnauthorizedTokenAction, 4823, "signer is not a member of the authorizing group", nil)
	}

	st, err := loadGroupAction(t, contract.ID, position, op, actionID)
	if err != nil {
		return false, store.Cost{}, err
	}
	st.Signers[signer] = power

	var total uint32
	for _, p := range st.Signers {
		total += p
	}

	// Crossing the threshold consumes the pending record: the action
	// executes exactly once, and an identical later submission opens a
	// fresh accumulation from zero.
	if total >= group.RequiredPower {
		_, found, gerr := t.Get(groupActionPath(contract.ID, position, op, actionID), actionID)
		if gerr != nil {
			return false, store.Cost{}, gerr
		}
		if found {
			cost, _, err := store.Delete(t, nil, store.ModeApply, groupActionPath(contract.ID, position, op, actionID),
				actionID, store.ApplyStateful)
			if err != nil {
				return false, store.Cost{}, err
			}
			return true, cost, nil
		}
		return true, store.Cost{}, nil
	}

	cost, err := saveGroupAction(t, contract.ID, position, op, actionID, st, signer, epoch)
	if err != nil {
		return false, store.Cost{}, err
	}
	return total >= group.RequiredPower, cost, nil
}
