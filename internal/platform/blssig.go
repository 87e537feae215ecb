package platform

import (
	bls12381 "github.com/kilic/bls12-381"

	"github.com/dashpay/drive-platform/internal/errs"
)

// VerifyChainLock checks a Core chain-lock signature against a quorum's
// cached BLS public key, the same pairing-check idiom used for
// masternode vote signatures in internal/voting/blssig.go.
func VerifyChainLock(quorumPublicKey, signature, message []byte) (bool, error) {
	g1 := bls12381.NewG1()
	g2 := bls12381.NewG2()
	pubKey, err := g1.FromBytes(quorumPublicKey)
	if err != nil {
		return false, errs.Wrap(err, "decode quorum public key")
	}
	sig, err := g2.FromBytes(signature)
	if err != nil {
		return false, errs.Wrap(err, "decode chain lock signature")
	}
	messagePoint, err := g2.MapToCurve(message)
	if err != nil {
		return false, errs.Wrap(err, "map chain lock message to curve")
	}

	engine := bls12381.NewEngine()
	engine.AddPair(pubKey, messagePoint)
	engine.AddPairInv(g1.One(), sig)
	return engine.Check(), nil
}
