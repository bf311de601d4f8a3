package market

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Roles holds the privileged identities of the protocol
type Roles struct {
	mu       sync.RWMutex
	owner    common.Address
	resolver common.Address
}

// NewRoles creates the role table. A zero resolver defaults to the owner.
func NewRoles(owner, resolver common.Address) *Roles {
	if resolver == (common.Address{}) {
		resolver = owner
	}
	return &Roles{owner: owner, resolver: resolver}
}

// Owner returns the protocol owner
func (r *Roles) Owner() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owner
}

// Resolver returns the identity authorized to resolve markets
func (r *Roles) Resolver() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolver
}

// RequireOwner fails with Unauthorized unless caller is the owner.
func (r *Roles) RequireOwner(caller common.Address) error {
	if caller == (common.Address{}) || caller != r.Owner() {
		return Errorf(KindUnauthorized, "%s is not the owner", caller.Hex())
	}
	return nil
}

// RequireResolver fails with Unauthorized unless caller is the resolver.
func (r *Roles) RequireResolver(caller common.Address) error {
	if caller == (common.Address{}) || caller != r.Resolver() {
		return Errorf(KindUnauthorized, "%s is not the resolver", caller.Hex())
	}
	return nil
}

// SetResolver replaces the resolver identity. Owner only.
func (r *Roles) SetResolver(caller, resolver common.Address) error {
	if err := r.RequireOwner(caller); err != nil {
		return err
	}
	if resolver == (common.Address{}) {
		return Errorf(KindInvalidInput, "resolver address is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolver = resolver
	return nil
}
