package identity

import "github.com/dashpay/drive-platform/internal/errs"

// allowedPurposeSecurity is the structural matrix of which security levels
// a key purpose may carry. Withdrawal keys must be master-level; owner
// keys must be master or critical; voting keys accept high or stronger;
// authentication, encryption and decryption keys accept medium or
// stronger, matching the relative ordering where a lower SecurityLevel
// constant is a stronger key.
var allowedPurposeSecurity = map[KeyPurpose][]SecurityLevel{
	PurposeAuthentication: {SecurityMaster, SecurityCritical, SecurityHigh, SecurityMedium},
	PurposeEncryption:     {SecurityMaster, SecurityCritical, SecurityHigh, SecurityMedium},
	PurposeDecryption:     {SecurityMaster, SecurityCritical, SecurityHigh, SecurityMedium},
	PurposeWithdraw:       {SecurityMaster},
	PurposeVoting:         {SecurityMaster, SecurityCritical, SecurityHigh},
	PurposeOwner:          {SecurityMaster, SecurityCritical},
}

// allowedPurposeType restricts which key types a purpose may use. Voting
// keys are BLS-backed (they sign masternode votes verified as BLS
// aggregates); every other purpose accepts any of the standard signature
// schemes.
var allowedPurposeType = map[KeyPurpose][]KeyType{
	PurposeVoting: {KeyBLS12381},
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// ValidatePublicKeyStructure checks a key's purpose/security-level/type
// combination against the structural matrix before the key is accepted
// into an identity (IdentityCreate or IdentityUpdate add-key).
func ValidatePublicKeyStructure(k Key) error {
	levels, ok := allowedPurposeSecurity[k.Purpose]
	if !ok {
		return errs.New(errs.KindStructure, 4630, "unknown key purpose", map[string]any{"purpose": k.Purpose})
	}
	if !contains(levels, k.SecurityLevel) {
		return errs.New(errs.KindStructure, 4631, "security level not allowed for this key purpose",
			map[string]any{"purpose": k.Purpose, "level": k.SecurityLevel})
	}
	if types, restricted := allowedPurposeType[k.Purpose]; restricted && !contains(types, k.Type) {
		return errs.New(errs.KindStructure, 4632, "key type not allowed for this key purpose",
			map[string]any{"purpose": k.Purpose, "type": k.Type})
	}
	if len(k.Data) == 0 {
		return errs.New(errs.KindStructure, 4633, "key data must not be empty", nil)
	}
	return nil
}

// ValidatePublicKeys runs ValidatePublicKeyStructure over a whole key set,
// additionally requiring exactly one key with PurposeOwner for a freshly
// created identity (IdentityCreate); IdentityUpdate callers pass
// requireOwner=false since the owner key already exists.
func ValidatePublicKeys(keys []Key, requireOwner bool) error {
	ownerCount := 0
	for _, k := range keys {
		if err := ValidatePublicKeyStructure(k); err != nil {
			return err
		}
		if k.Purpose == PurposeOwner {
			ownerCount++
		}
	}
	if requireOwner && ownerCount != 1 {
		return errs.New(errs.KindStructure, 4634, "identity creation requires exactly one owner key",
			map[string]any{"owner_key_count": ownerCount})
	}
	return nil
}
