// Package upi wraps the external UPI/IFSC validation provider.
package upi

import (
	"context"

	"github.com/agrimandi/auth-service/internal/validate"
)

// Verifier validates UPI virtual payment addresses and resolves IFSC codes.
// The hauler payment step requires a real verification; other callers treat
// it as optional.
type Verifier interface {
	// VerifyVPA checks that the VPA resolves to a live account.
	VerifyVPA(ctx context.Context, vpa string) (bool, error)
	// LookupIFSC returns the bank name for an IFSC code.
	LookupIFSC(ctx context.Context, ifsc string) (string, error)
}

// FormatOnly is the Verifier used when the provider is disabled: format
// validation alone suffices and every well-formed input passes.
type FormatOnly struct{}

func (FormatOnly) VerifyVPA(_ context.Context, vpa string) (bool, error) {
	_, ok := validate.UPI(vpa)
	return ok, nil
}

func (FormatOnly) LookupIFSC(_ context.Context, ifsc string) (string, error) {
	if _, ok := validate.IFSC(ifsc); !ok {
		return "", nil
	}
	return "", nil
}
