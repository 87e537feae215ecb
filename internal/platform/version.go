package platform

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/dashpay/drive-platform/internal/errs"
)

// PlatformVersion pins the function-table row each versioned component
// selects an implementation from. A patch is a pure transform of one of these
// structs, letting a single deployed protocol version receive in-band
// hotfixes without a full protocol upgrade.
type PlatformVersion struct {
	Protocol uint32
	Document uint16
	Token    uint16
	Voting   uint16
	Identity uint16
}

// PatchFn derives a patched PlatformVersion from the version it patches.
// Patches compose: applying two patches at increasing heights feeds the
// first patch's output into the second.
type PatchFn func(PlatformVersion) PlatformVersion

var patchesByProtocolVersion = map[uint32]map[uint64]PatchFn{}

// RegisterPatch adds a patch for protocolVersion, effective starting at
// height. Re-registering the same (protocolVersion, height) pair
// overwrites the previous patch; callers normally do this once at
// process startup, before any block is processed.
func RegisterPatch(protocolVersion uint32, height uint64, fn PatchFn) {
	byHeight, ok := patchesByProtocolVersion[protocolVersion]
	if !ok {
		byHeight = map[uint64]PatchFn{}
		patchesByProtocolVersion[protocolVersion] = byHeight
	}
	byHeight[height] = fn
}

// sortedPatchHeights returns the registered patch heights for
// protocolVersion in ascending order.
func sortedPatchHeights(protocolVersion uint32) []uint64 {
	byHeight := patchesByProtocolVersion[protocolVersion]
	heights := make([]uint64, 0, len(byHeight))
	for h := range byHeight {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights
}

// ApplyAllPatchesUpToHeight applies every registered patch for the
// current protocol version with an effective height <= height, in
// height order, and installs the result as the active patched version.
// It errors if a patch is already active; callers call this exactly
// once, at node startup or immediately after a protocol-version switch.
func (s *State) ApplyAllPatchesUpToHeight(height uint64) (*PlatformVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.patchedVersion != nil {
		return nil, errs.Fatal(errs.KindCorruptedCachedState, "platform version already patched", nil)
	}

	heights := sortedPatchHeights(s.currentProtocolVersion)
	if len(heights) == 0 {
		return nil, nil
	}

	patched := PlatformVersion{Protocol: s.currentProtocolVersion}
	applied := false
	for _, h := range heights {
		if h > height {
			break
		}
		patched = patchesByProtocolVersion[s.currentProtocolVersion][h](patched)
		applied = true
		s.log.WithFields(logrus.Fields{
			"protocol_version": s.currentProtocolVersion, "height": h,
		}).Debug("applied platform version patch")
	}
	if !applied {
		return nil, nil
	}

	s.patchedVersion = &patched
	s.patchedForProtocol = s.currentProtocolVersion
	cp := patched
	return &cp, nil
}

// ApplyPatchForHeight applies the single patch (if any) registered for
// exactly height under the current protocol version, layering it on top
// of whatever patched version is already active. If the protocol
// version has since moved on from the one the active patch was built
// for, the stale patch is dropped first, matching the rule that a
// protocol-version switch clears any in-band hotfix.
func (s *State) ApplyPatchForHeight(height uint64) (*PlatformVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.patchedVersion != nil && s.patchedForProtocol != s.currentProtocolVersion {
		s.log.WithFields(logrus.Fields{
			"previous_protocol_version": s.patchedForProtocol, "protocol_version": s.currentProtocolVersion,
		}).Debug("dropping stale platform version patch after protocol upgrade")
		s.patchedVersion = nil
	}

	byHeight, ok := patchesByProtocolVersion[s.currentProtocolVersion]
	if !ok {
		return nil, nil
	}
	fn, ok := byHeight[height]
	if !ok {
		return nil, nil
	}

	base := PlatformVersion{Protocol: s.currentProtocolVersion}
	if s.patchedVersion != nil {
		base = *s.patchedVersion
	}
	patched := fn(base)
	s.patchedVersion = &patched
	s.patchedForProtocol = s.currentProtocolVersion

	s.log.WithFields(logrus.Fields{
		"protocol_version": s.currentProtocolVersion, "height": height,
	}).Debug("applied platform version patch")

	cp := patched
	return &cp, nil
}

// SetProtocolVersion switches the active protocol version. Per the
// version-patching invariant, this drops any currently active patch;
// the next ApplyPatchForHeight call starts fresh under the new version.
func (s *State) SetProtocolVersion(version uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version == s.currentProtocolVersion {
		return
	}
	s.currentProtocolVersion = version
	s.patchedVersion = nil
}

// ActiveVersion returns the version row currently in effect: the
// patched version if one is active, otherwise the unpatched protocol
// version's defaults.
func (s *State) ActiveVersion() PlatformVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.patchedVersion != nil {
		return *s.patchedVersion
	}
	return PlatformVersion{Protocol: s.currentProtocolVersion}
}
