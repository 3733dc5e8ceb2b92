package engine

import "context"

// Verifier confirms that the caller controls the identity it claims to act
// as. It gates every mutating transition.
type Verifier interface {
	VerifyActor(ctx context.Context, identity string) bool
}

type signerKey struct{}

// WithSigner records the identity whose signature the transport layer has
// already checked.
func WithSigner(ctx context.Context, signer string) context.Context {
	return context.WithValue(ctx, signerKey{}, signer)
}

func SignerFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(signerKey{}).(string)
	return s, ok && s != ""
}

// SignerVerifier accepts an identity only when it equals the authenticated
// signer carried by ctx.
type SignerVerifier struct{}

func (SignerVerifier) VerifyActor(ctx context.Context, identity string) bool {
	s, ok := SignerFromContext(ctx)
	return ok && s == identity
}

type heightKey struct{}

// WithHeight records the block height a transition executes at.
func WithHeight(ctx context.Context, height int64) context.Context {
	return context.WithValue(ctx, heightKey{}, height)
}

func HeightFromContext(ctx context.Context) (int64, bool) {
	h, ok := ctx.Value(heightKey{}).(int64)
	return h, ok
}
