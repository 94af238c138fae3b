package crypto

import "errors"

// Verification failures. VerifyBeacon returns exactly one of these, unwrapped.
var (
	// ErrInvalidRandomness means the randomness is not the SHA-256 of the signature.
	ErrInvalidRandomness = errors.New("the randomness for the beacon did not match the signature")
	// ErrInvalidSignatureLength means the beacon carries no signature.
	ErrInvalidSignatureLength = errors.New("invalid signature length")
	// ErrChainedBeaconNeedsPreviousSignature means a chained scheme beacon has no previous signature.
	ErrChainedBeaconNeedsPreviousSignature = errors.New("chained beacons must have a `previous_signature`")
	// ErrInvalidPublicKey covers undecodable keys, keys outside the prime order
	// subgroup and the identity element.
	ErrInvalidPublicKey = errors.New("invalid public key")
	// ErrSignatureFailedVerification covers both undecodable signatures and
	// pairing mismatches.
	ErrSignatureFailedVerification = errors.New("signature verification failed")
)

// ErrUnknownScheme is returned when a scheme ID is not one of the supported schemes.
var ErrUnknownScheme = errors.New("unknown scheme")
