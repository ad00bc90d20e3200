package access

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/errs"
)

var (
	gov   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	other = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestRoles_GrantRevoke(t *testing.T) {
	r := NewRoles(gov, common.Address{})
	if !r.IsGovernance(gov) {
		t.Fatal("seeded principal should be governance")
	}
	if r.IsGovernance(common.Address{}) {
		t.Fatal("zero address must never be seeded as governance")
	}
	if r.IsGovernance(other) {
		t.Fatal("unseeded principal should not be governance")
	}

	r.Grant(other)
	if !r.IsGovernance(other) {
		t.Fatal("granted principal should be governance")
	}
	r.Revoke(gov)
	if r.IsGovernance(gov) {
		t.Fatal("revoked principal should not be governance")
	}
	if len(r.Members()) != 1 {
		t.Fatalf("expected 1 member, got %d", len(r.Members()))
	}
}

func TestAuthorityFunc(t *testing.T) {
	var a Authority = AuthorityFunc(func(c common.Address) bool { return c == other })
	if !a.IsGovernance(other) || a.IsGovernance(gov) {
		t.Fatal("AuthorityFunc should delegate to the wrapped predicate")
	}
}

func TestGuard_RejectsReentry(t *testing.T) {
	var g Guard
	release, err := g.Enter("outer")
	if err != nil {
		t.Fatalf("first enter: %v", err)
	}
	if !g.Busy() {
		t.Fatal("guard should be busy while entered")
	}

	if _, err := g.Enter("inner"); !errs.Is(err, errs.KindReentrant) {
		t.Fatalf("expected reentrant failure, got %v", err)
	}

	release()
	if g.Busy() {
		t.Fatal("guard should be released")
	}
	release2, err := g.Enter("again")
	if err != nil {
		t.Fatalf("enter after release: %v", err)
	}
	release2()
}
