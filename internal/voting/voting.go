// Package voting implements contested-resource poll lifecycle: start on
// the first contested document-create to collide on an index, masternode
// vote casting, tally, and award/lock finalization over
// a fixed contender set.
package voting

import (
	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// Status is the lifecycle state of a contested-resource poll.
type Status int

const (
	NotStarted Status = iota
	Started
	Awarded
	Locked
)

// Contender is one of the documents competing for a contested index
// value: the document itself, its owner, the credits the owner locked to
// enter the contest, and the running masternode-vote tally it holds.
type Contender struct {
	DocumentID    wire.ID
	OwnerID       wire.ID
	LockedCredits uint64
	Tally         uint64
}

// Poll is the stored state for one (contract, document type, index
// name, index value tuple) contest.
type Poll struct {
	ContractID   wire.ID
	TypeName     string
	IndexName    string
	IndexKey     []byte
	Status       Status
	StartBlock   uint64
	EndBlock     uint64
	Contenders   []Contender
	AbstainTally uint64
	LockTally    uint64
	AwardedTo    wire.ID
	// AwardedDocument is the winning contender's document id, set
	// alongside AwardedTo so finalization can point the contested index
	// entry at the awarded document without re-deriving the winner.
	AwardedDocument wire.ID
	LockCount       uint32 // number of times this exact contender set has resolved Locked

	// Voters records each masternode identity's current choice so a
	// resubmitted vote updates rather than double-counts a tally.
	// A zero wire.ID choice means abstain; choiceLock sentinel means lock.
	Voters map[wire.ID]wire.ID
}

// choiceLock is a sentinel document id (all 0xFF) recorded in Voters to
// mean "voted to lock the contest" as distinct from "voted to abstain"
// (all-zero) or "voted to award a specific contender".
var choiceLock = func() wire.ID {
	var id wire.ID
	for i := range id {
		id[i] = 0xFF
	}
	return id
}()

func pollKey(typeName, indexName string, indexKey []byte) []byte {
	key := make([]byte, 0, len(typeName)+len(indexName)+len(indexKey)+2)
	key = append(key, byte(len(typeName)))
	key = append(key, typeName...)
	key = append(key, byte(len(indexName)))
	key = append(key, indexName...)
	key = append(key, indexKey...)
	return key
}

func pollPath(contractID wire.ID) store.Path {
	return store.Path{store.TagVotes, append([]byte{}, contractID[:]...)}
}

func prefundedPath(contractID wire.ID) store.Path {
	return store.Path{store.TagPreFundedSpecializedBalances, append([]byte{}, contractID[:]...)}
}

func (p *Poll) contenderIndex(docID wire.ID) int {
	for i, c := range p.Contenders {
		if c.DocumentID == docID {
			return i
		}
	}
	return -1
}

var errPollNotFound = errs.New(errs.KindNotFound, 4910, "contested resource poll not found", nil)
