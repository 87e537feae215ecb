package voting

import (
	"errors"

	"github.com/dashpay/drive-platform/internal/errs"
	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// Load fetches a poll, returning errPollNotFound if none exists yet for
// this (type, index, index-value) tuple.
func Load(t *store.Transaction, contractID wire.ID, typeName, indexName string, indexKey []byte) (*Poll, error) {
	el, found, err := t.Get(pollPath(contractID), pollKey(typeName, indexName, indexKey))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errPollNotFound
	}
	return decodePoll(el.Item)
}

func save(t *store.Transaction, p *Poll) (store.Cost, error) {
	return store.Insert(t, nil, store.ModeApply, pollPath(p.ContractID), pollKey(p.TypeName, p.IndexName, p.IndexKey),
		store.Element{Kind: store.KindItem, Item: encodePoll(p)}, store.DefaultMergeHook(0))
}

// StartOrJoin starts a new poll for a contested index hit, or — if one
// is already running for this index value — adds contender as a new
// competitor in the existing poll.
func StartOrJoin(t *store.Transaction, contractID wire.ID, typeName, indexName string, indexKey []byte, startBlock, endBlock uint64, contender Contender) (*Poll, store.Cost, error) {
	p, err := Load(t, contractID, typeName, indexName, indexKey)
	if err != nil {
		if !errors.Is(err, errPollNotFound) {
			return nil, store.Cost{}, err
		}
		p = &Poll{
			ContractID: contractID,
			TypeName:   typeName,
			IndexName:  indexName,
			IndexKey:   append([]byte{}, indexKey...),
			Status:     Started,
			StartBlock: startBlock,
			EndBlock:   endBlock,
			Voters:     map[wire.ID]wire.ID{},
		}
	}
	if p.Status != Started {
		return nil, store.Cost{}, errs.New(errs.KindContestedResourceIndex, 4920, "contested index value already resolved by a prior poll",
			map[string]any{"status": p.Status})
	}
	if p.contenderIndex(contender.DocumentID) == -1 {
		p.Contenders = append(p.Contenders, contender)
	}
	cost, err := save(t, p)
	if err != nil {
		return nil, store.Cost{}, err
	}
	return p, cost, nil
}

// CastVote records voter's choice, replacing any prior choice from the
// same voter so a resubmitted vote moves rather than inflates a tally.
// choice == zero ID means abstain, LockChoice() votes to lock, and any
// other value must be a contender's document id.
func CastVote(t *store.Transaction, p *Poll, voter wire.ID, choice wire.ID) (store.Cost, error) {
	if p.Status != Started {
		return store.Cost{}, errs.New(errs.KindInvalidArgument, 4921, "poll is not accepting votes", map[string]any{"status": p.Status})
	}
	retractVote(p, voter)

	switch {
	case choice == (wire.ID{}):
		p.AbstainTally++
	case choice == choiceLock:
		p.LockTally++
	default:
		idx := p.contenderIndex(choice)
		if idx == -1 {
			return store.Cost{}, errs.New(errs.KindInvalidArgument, 4922, "vote targets a document not in this contest",
				map[string]any{"document": choice.String()})
		}
		p.Contenders[idx].Tally++
	}
	p.Voters[voter] = choice
	return save(t, p)
}

// LockChoice is the sentinel a caller passes to CastVote to record a
// vote to lock the contest rather than award it or abstain.
func LockChoice() wire.ID { return choiceLock }

func retractVote(p *Poll, voter wire.ID) {
	prev, voted := p.Voters[voter]
	if !voted {
		return
	}
	switch {
	case prev == (wire.ID{}):
		if p.AbstainTally > 0 {
			p.AbstainTally--
		}
	case prev == choiceLock:
		if p.LockTally > 0 {
			p.LockTally--
		}
	default:
		if idx := p.contenderIndex(prev); idx != -1 && p.Contenders[idx].Tally > 0 {
			p.Contenders[idx].Tally--
		}
	}
}

// Finalize resolves a poll once its end block has passed: the highest-
// tally contender is awarded when its tally is strictly greater than both
// the lock and abstain tallies; otherwise the contest is Locked and
// LockCount is incremented. permanentLockThreshold is not consulted:
// StartOrJoin rejects any poll that is no longer Started, so every
// Locked outcome is already final for its index value.
func Finalize(t *store.Transaction, p *Poll, permanentLockThreshold uint32) (store.Cost, error) {
	if p.Status != Started {
		return store.Cost{}, errs.New(errs.KindInvalidArgument, 4923, "poll already finalized", map[string]any{"status": p.Status})
	}

	var winner *Contender
	for i := range p.Contenders {
		c := &p.Contenders[i]
		if winner == nil || c.Tally > winner.Tally {
			winner = c
		}
	}

	if winner != nil && winner.Tally > p.LockTally && winner.Tally > p.AbstainTally {
		p.Status = Awarded
		p.AwardedTo = winner.OwnerID
		p.AwardedDocument = winner.DocumentID
		return save(t, p)
	}

	p.Status = Locked
	p.LockCount++
	return save(t, p)
}
