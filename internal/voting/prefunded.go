package voting

import (
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

func loadPrefundedBalance(t *store.Transaction, contractID wire.ID, typeName, indexName string, indexKey []byte) (uint64, error) {
	el, found, err := t.Get(prefundedPath(contractID), pollKey(typeName, indexName, indexKey))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return decodeUint64(el.Item), nil
}

func savePrefundedBalance(t *store.Transaction, contractID wire.ID, typeName, indexName string, indexKey []byte, amount uint64) (store.Cost, error) {
	return store.Insert(t, nil, store.ModeApply, prefundedPath(contractID), pollKey(typeName, indexName, indexKey),
		store.Element{Kind: store.KindItem, Item: encodeUint64(amount)}, store.DefaultMergeHook(0))
}

// ConsumeForVoteStorage debits up to `cost` credits from the poll's
// pre-funded balance to pay for the storage a cast vote consumed.
// Returns the shortfall (0 if the balance fully covered the cost) — a
// shortfall does not reject the vote; the executor's own fee metering
// handles any remaining charge against the voter directly.
func ConsumeForVoteStorage(t *store.Transaction, p *Poll, cost uint64) (shortfall uint64, _ store.Cost, err error) {
	balance, err := loadPrefundedBalance(t, p.ContractID, p.TypeName, p.IndexName, p.IndexKey)
	if err != nil {
		return 0, store.Cost{}, err
	}
	spend := cost
	if spend > balance {
		shortfall = spend - balance
		spend = balance
	}
	writeCost, err := savePrefundedBalance(t, p.ContractID, p.TypeName, p.IndexName, p.IndexKey, balance-spend)
	if err != nil {
		return 0, store.Cost{}, err
	}
	return shortfall, writeCost, nil
}

// BurnResidual zeroes out whatever remains of a poll's pre-funded
// balance once it finalizes, returning the burned amount. The platform
// has no mechanism to refund unspent vote-processing credits to the
// original funder.
func BurnResidual(t *store.Transaction, p *Poll) (uint64, store.Cost, error) {
	balance, err := loadPrefundedBalance(t, p.ContractID, p.TypeName, p.IndexName, p.IndexKey)
	if err != nil {
		return 0, store.Cost{}, err
	}
	if balance == 0 {
		return 0, store.Cost{}, nil
	}
	cost, err := savePrefundedBalance(t, p.ContractID, p.TypeName, p.IndexName, p.IndexKey, 0)
	if err != nil {
		return 0, store.Cost{}, err
	}
	return balance, cost, nil
}

// FundPoll adds credits to a poll's pre-funded vote-storage balance,
// called when a contender locks credits to enter the contest.
func FundPoll(t *store.Transaction, p *Poll, amount uint64) (store.Cost, error) {
	balance, err := loadPrefundedBalance(t, p.ContractID, p.TypeName, p.IndexName, p.IndexKey)
	if err != nil {
		return store.Cost{}, err
	}
	return savePrefundedBalance(t, p.ContractID, p.TypeName, p.IndexName, p.IndexKey, balance+amount)
}
