package token

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/registry"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// Mint increases total_supply and credits `to`, rejecting an overflow of
// the token's configured max supply (0 = unlimited). Under a group rule
// the mint lands only once aggregate signer power crosses the group's
// threshold; earlier signatures just record their power.
func Mint(t *store.Transaction, contract *registry.DataContract, cfg registry.TokenConfiguration, signer, to wire.ID, amount uint64, blockTimeMs uint64, epoch uint64) (store.Cost, error) {
	if !cfg.MintingAllowed {
		return store.Cost{}, errs.New(errs.KindAuthorization, 4830, "minting is not enabled for this token", nil)
	}
	ready, authCost, err := authorize(t, contract, cfg, "mint", signer, epoch, to[:], encodeUint64(amount))
	if err != nil {
		return store.Cost{}, err
	}
	if !ready {
		return authCost, nil
	}

	supply, err := loadTotalSupply(t, contract.ID, cfg.Position)
	if err != nil {
		return store.Cost{}, err
	}
	newSupply := supply + amount
	if newSupply < supply {
		return store.Cost{}, errOverflow
	}
	if cfg.MaxSupply != 0 && newSupply > cfg.MaxSupply {
		return store.Cost{}, errPastMax
	}

	bal, err := loadBalance(t, contract.ID, cfg.Position, to)
	if err != nil {
		return store.Cost{}, err
	}
	bal.Amount += amount

	var total store.Cost
	cost, err := saveBalance(t, contract.ID, cfg.Position, to, bal, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)

	cost, err = saveTotalSupply(t, contract.ID, cfg.Position, newSupply, signer, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)

	cost, err = appendEvent(t, contract.ID, cfg, Event{Kind: "mint", Position: cfg.Position, Actor: signer, Target: to, Amount: amount, BlockTime: blockTimeMs}, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)
	return total, nil
}

// Burn decreases total_supply and debits `from`'s spendable balance.
func Burn(t *store.Transaction, contract *registry.DataContract, cfg registry.TokenConfiguration, signer, from wire.ID, amount uint64, blockTimeMs uint64, epoch uint64) (store.Cost, error) {
	if !cfg.BurningAllowed {
		return store.Cost{}, errs.New(errs.KindAuthorization, 4831, "burning is not enabled for this token", nil)
	}
	ready, authCost, err := authorize(t, contract, cfg, "burn", signer, epoch, from[:], encodeUint64(amount))
	if err != nil {
		return store.Cost{}, err
	}
	if !ready {
		return authCost, nil
	}

	bal, err := loadBalance(t, contract.ID, cfg.Position, from)
	if err != nil {
		return store.Cost{}, err
	}
	if bal.Amount < amount {
		return store.Cost{}, errs.New(errs.KindInsufficientBalance, 4832, "insufficient balance to burn",
			map[string]any{"have": bal.Amount, "want": amount})
	}
	bal.Amount -= amount

	supply, err := loadTotalSupply(t, contract.ID, cfg.Position)
	if err != nil {
		return store.Cost{}, err
	}
	var newSupply uint64
	if supply > amount {
		newSupply = supply - amount
	}

	var total store.Cost
	cost, err := saveBalance(t, contract.ID, cfg.Position, from, bal, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)

	cost, err = saveTotalSupply(t, contract.ID, cfg.Position, newSupply, signer, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)

	cost, err = appendEvent(t, contract.ID, cfg, Event{Kind: "burn", Position: cfg.Position, Actor: signer, Target: from, Amount: amount, BlockTime: blockTimeMs}, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)
	return total, nil
}

// Freeze moves amount from an identity's spendable balance into its
// frozen balance; it does not touch total_supply.
func Freeze(t *store.Transaction, contract *registry.DataContract, cfg registry.TokenConfiguration, signer, target wire.ID, amount uint64, epoch uint64) (store.Cost, error) {
	if !cfg.FreezingAllowed {
		return store.Cost{}, errs.New(errs.KindAuthorization, 4833, "freezing is not enabled for this token", nil)
	}
	ready, authCost, err := authorize(t, contract, cfg, "freeze", signer, epoch, target[:], encodeUint64(amount))
	if err != nil {
		return store.Cost{}, err
	}
	if !ready {
		return authCost, nil
	}
	bal, err := loadBalance(t, contract.ID, cfg.Position, target)
	if err != nil {
		return store.Cost{}, err
	}
	if bal.Amount < amount {
		return store.Cost{}, errs.New(errs.KindInsufficientBalance, 4834, "insufficient balance to freeze",
			map[string]any{"have": bal.Amount, "want": amount})
	}
	bal.Amount -= amount
	bal.Frozen += amount
	return saveBalance(t, contract.ID, cfg.Position, target, bal, epoch)
}

// Unfreeze reverses Freeze, moving amount back to the spendable balance.
func Unfreeze(t *store.Transaction, contract *registry.DataContract, cfg registry.TokenConfiguration, signer, target wire.ID, amount uint64, epoch uint64) (store.Cost, error) {
	ready, authCost, err := authorize(t, contract, cfg, "unfreeze", signer, epoch, target[:], encodeUint64(amount))
	if err != nil {
		return store.Cost{}, err
	}
	if !ready {
		return authCost, nil
	}
	bal, err := loadBalance(t, contract.ID, cfg.Position, target)
	if err != nil {
		return store.Cost{}, err
	}
	if bal.Frozen < amount {
		return store.Cost{}, errs.New(errs.KindInsufficientBalance, 4835, "insufficient frozen balance to unfreeze",
			map[string]any{"have": bal.Frozen, "want": amount})
	}
	bal.Frozen -= amount
	bal.Amount += amount
	return saveBalance(t, contract.ID, cfg.Position, target, bal, epoch)
}

// DestroyFrozenFunds permanently removes frozen funds from circulation,
// reducing total_supply.
func DestroyFrozenFunds(t *store.Transaction, contract *registry.DataContract, cfg registry.TokenConfiguration, signer, target wire.ID, amount uint64, blockTimeMs uint64, epoch uint64) (store.Cost, error) {
	if !cfg.DestroyFrozenAllowed {
		return store.Cost{}, errs.New(errs.KindAuthorization, 4836, "destroying frozen funds is not enabled for this token", nil)
	}
	ready, authCost, err := authorize(t, contract, cfg, "destroyFrozen", signer, epoch, target[:], encodeUint64(amount))
	if err != nil {
		return store.Cost{}, err
	}
	if !ready {
		return authCost, nil
	}
	bal, err := loadBalance(t, contract.ID, cfg.Position, target)
	if err != nil {
		return store.Cost{}, err
	}
	if bal.Frozen < amount {
		return store.Cost{}, errs.New(errs.KindInsufficientBalance, 4837, "insufficient frozen balance to destroy",
			map[string]any{"have": bal.Frozen, "want": amount})
	}
	bal.Frozen -= amount

	supply, err := loadTotalSupply(t, contract.ID, cfg.Position)
	if err != nil {
		return store.Cost{}, err
	}
	var newSupply uint64
	if supply > amount {
		newSupply = supply - amount
	}

	var total store.Cost
	cost, err := saveBalance(t, contract.ID, cfg.Position, target, bal, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)

	cost, err = saveTotalSupply(t, contract.ID, cfg.Position, newSupply, signer, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)

	cost, err = appendEvent(t, contract.ID, cfg, Event{Kind: "destroyFrozen", Position: cfg.Position, Actor: signer, Target: target, Amount: amount, BlockTime: blockTimeMs}, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)
	return total, nil
}

// Transfer moves spendable balance between two identities. A transfer to
// a non-existent identity fails RecipientIdentityDoesNotExist unless the
// recipient is the sender.
func Transfer(t *store.Transaction, contract *registry.DataContract, cfg registry.TokenConfiguration, from, to wire.ID, amount uint64, blockTimeMs uint64, epoch uint64) (store.Cost, error) {
	if from != to {
		exists, err := identityExists(t, to)
		if err != nil {
			return store.Cost{}, err
		}
		if !exists {
			return store.Cost{}, errs.New(errs.KindRecipientIdentityDoesNotExist, 4838, "transfer recipient identity does not exist",
				map[string]any{"recipient": to.String()})
		}
	}

	fromBal, err := loadBalance(t, contract.ID, cfg.Position, from)
	if err != nil {
		return store.Cost{}, err
	}
	if fromBal.Amount < amount {
		return store.Cost{}, errs.New(errs.KindInsufficientBalance, 4839, "insufficient balance to transfer",
			map[string]any{"have": fromBal.Amount, "want": amount})
	}
	toBal, err := loadBalance(t, contract.ID, cfg.Position, to)
	if err != nil {
		return store.Cost{}, err
	}
	fromBal.Amount -= amount
	toBal.Amount += amount

	var total store.Cost
	cost, err := saveBalance(t, contract.ID, cfg.Position, from, fromBal, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)

	cost, err = saveBalance(t, contract.ID, cfg.Position, to, toBal, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)

	cost, err = appendEvent(t, contract.ID, cfg, Event{Kind: "transfer", Position: cfg.Position, Actor: from, Target: to, Amount: amount, BlockTime: blockTimeMs}, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)
	return total, nil
}

// Claim credits `to` from a pre-programmed or perpetual distribution
// schedule. The schedule's own cadence/amount computation belongs to the
// executor (it depends on block time and prior claims tracked in the
// balance's owning document type); Claim applies the already-computed
// amount and records the event.
func Claim(t *store.Transaction, contract *registry.DataContract, cfg registry.TokenConfiguration, to wire.ID, amount uint64, blockTimeMs uint64, epoch uint64) (store.Cost, error) {
	bal, err := loadBalance(t, contract.ID, cfg.Position, to)
	if err != nil {
		return store.Cost{}, err
	}
	bal.Amount += amount

	var total store.Cost
	cost, err := saveBalance(t, contract.ID, cfg.Position, to, bal, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)

	cost, err = appendEvent(t, contract.ID, cfg, Event{Kind: "claim", Position: cfg.Position, Target: to, Amount: amount, BlockTime: blockTimeMs}, epoch)
	if err != nil {
		return store.Cost{}, err
	}
	addCost(&total, cost)
	return total, nil
}

// EmergencyAction pauses or unpauses a token's operations. Paused state
// is recorded as a single flag item in the position's subtree, which
// Paused reports. No token operation and no executor path reads the
// flag, so operations on a paused position still run.
func EmergencyAction(t *store.Transaction, contract *registry.DataContract, cfg registry.TokenConfiguration, signer wire.ID, pause bool, epoch uint64) (store.Cost, error) {
	val := []byte{0}
	if pause {
		val = []byte{1}
	}
	ready, authCost, err := authorize(t, contract, cfg, "emergencyAction", signer, epoch, val)
	if err != nil {
		return store.Cost{}, err
	}
	if !ready {
		return authCost, nil
	}
	el := store.Element{Kind: store.KindItem, Item: val, Flags: store.NewFlags(signer, epoch, uint32(len(val)))}
	return store.Insert(t, nil, store.ModeApply, balancePath(contract.ID, cfg.Position), []byte("$paused"),
		el, store.DefaultMergeHook(epoch))
}

// Paused reports whether EmergencyAction has paused this token position.
func Paused(t *store.Transaction, contractID wire.ID, position uint16) (bool, error) {
	el, found, err := t.Get(balancePath(contractID, position), []byte("$paused"))
	if err != nil || !found {
		return false, err
	}
	return len(el.Item) > 0 && el.Item[0] == 1, nil
}

// ConfigUpdate is authorized through the admin side of the relevant
// rule (the rule that governs changing the rule itself), not the rule
// that governs the operation day-to-day. A group-held admin rule
// accumulates signer power like any other group action; ready reports
// whether the threshold has been crossed and the rule change may land.
func ConfigUpdate(t *store.Transaction, contract *registry.DataContract, cfg registry.TokenConfiguration, op string, signer wire.ID, epoch uint64) (ready bool, cost store.Cost, err error) {
	rule := ruleFor(cfg, op)
	adminRule := registry.ChangeControlRule{Actor: rule.AdminActor, GroupName: rule.AdminGroupName}
	if adminRule.Actor == registry.ActorOwner || adminRule.Actor == registry.ActorAnyone {
		if err := authorizeDirect(contract, adminRule, signer); err != nil {
			return false, store.Cost{}, err
		}
		return true, store.Cost{}, nil
	}
	return authorizeGroupAction(t, contract, adminRule, cfg.Position, "configUpdate:"+op,
		actionID(contract.ID, cfg.Position, "configUpdate", []byte(op)), signer, epoch)
}

// SetDirectPurchasePrice sets (or clears, with price=0) the fixed-price
// direct-purchase schedule for a token position.
func SetDirectPurchasePrice(t *store.Transaction, contract *registry.DataContract, cfg registry.TokenConfiguration, signer wire.ID, pricePerToken uint64, epoch uint64) (store.Cost, error) {
	if !cfg.DirectPurchaseEnabled {
		return store.Cost{}, errs.New(errs.KindAuthorization, 4840, "direct purchase is not enabled for this token", nil)
	}
	ready, authCost, err := authorize(t, contract, cfg, "directPurchasePrice", signer, epoch, encodeUint64(pricePerToken))
	if err != nil {
		return store.Cost{}, err
	}
	if !ready {
		return authCost, nil
	}
	encoded := encodeUint64(pricePerToken)
	el := store.Element{Kind: store.KindItem, Item: encoded, Flags: store.NewFlags(signer, epoch, uint32(len(encoded)))}
	return store.Insert(t, nil, store.ModeApply, balancePath(contract.ID, cfg.Position), []byte("$price"),
		el, store.DefaultMergeHook(epoch))
}

// DirectPurchaseResult reports the credit movement a DirectPurchase
// produced, for the caller to apply against the buyer's identity balance.
type DirectPurchaseResult struct {
	TotalCost uint64
}

// DirectPurchase mints tokenAmount to buyer (raising total supply) at the
// configured fixed price; it
// does not itself debit identity credits — the executor applies
// TotalCost against the buyer's balance using the returned result.
func DirectPurchase(t *store.Transaction, contract *registry.DataContract, cfg registry.TokenConfiguration, buyer wire.ID, tokenAmount uint64, blockTimeMs uint64, epoch uint64) (DirectPurchaseResult, store.Cost, error) {
	if !cfg.DirectPurchaseEnabled {
		return DirectPurchaseResult{}, store.Cost{}, errs.New(errs.KindAuthorization, 4841, "direct purchase is not enabled for this token", nil)
	}
	el, found, err := t.Get(balancePath(contract.ID, cfg.Position), []byte("$price"))
	if err != nil {
		return DirectPurchaseResult{}, store.Cost{}, err
	}
	if !found {
		return DirectPurchaseResult{}, store.Cost{}, errs.New(errs.KindInvalidArgument, 4842, "no direct purchase price set for this token", nil)
	}
	pricePerToken := decodeUint64(el.Item)
	totalCost := pricePerToken * tokenAmount

	bal, err := loadBalance(t, contract.ID, cfg.Position, buyer)
	if err != nil {
		return DirectPurchaseResult{}, store.Cost{}, err
	}
	bal.Amount += tokenAmount

	supply, err := loadTotalSupply(t, contract.ID, cfg.Position)
	if err != nil {
		return DirectPurchaseResult{}, store.Cost{}, err
	}
	newSupply := supply + tokenAmount
	if newSupply < supply {
		return DirectPurchaseResult{}, store.Cost{}, errOverflow
	}
	if cfg.MaxSupply != 0 && newSupply > cfg.MaxSupply {
		return DirectPurchaseResult{}, store.Cost{}, errPastMax
	}

	var total store.Cost
	cost, err := saveBalance(t, contract.ID, cfg.Position, buyer, bal, epoch)
	if err != nil {
		return DirectPurchaseResult{}, store.Cost{}, err
	}
	addCost(&total, cost)

	cost, err = saveTotalSupply(t, contract.ID, cfg.Position, newSupply, buyer, epoch)
	if err != nil {
		return DirectPurchaseResult{}, store.Cost{}, err
	}
	addCost(&total, cost)

	cost, err = appendEvent(t, contract.ID, cfg, Event{Kind: "directPurchase", Position: cfg.Position, Target: buyer, Amount: tokenAmount, BlockTime: blockTimeMs}, epoch)
	if err != nil {
		return DirectPurchaseResult{}, store.Cost{}, err
	}
	addCost(&total, cost)
	return DirectPurchaseResult{TotalCost: totalCost}, total, nil
}

// BalanceOf returns the current spendable/frozen balance for an identity
// at a token position.
func BalanceOf(t *store.Transaction, contractID wire.ID, position uint16, id wire.ID) (Balance, error) {
	return loadBalance(t, contractID, position, id)
}
