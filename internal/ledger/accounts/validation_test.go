package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledgercore/internal/shared"
)

func asset(number, name string) Account {
	return Account{Number: number, Name: name, Type: AccountTypeAsset}
}

func TestValidateBlankFields(t *testing.T) {
	errs := Validate(Candidate{Account: Account{Number: "  ", Name: ""}})

	assert.True(t, errs.HasField("name", shared.CodeNameEmpty))
	assert.True(t, errs.HasField("account_number", shared.CodeNumberEmpty))
	assert.True(t, errs.HasField("account_type", shared.CodeTypeEmpty))
}

func TestValidateRootAccountPasses(t *testing.T) {
	errs := Validate(Candidate{Account: asset("1", "Assets")})
	assert.NoError(t, errs.Err())
}

func TestValidateParentRules(t *testing.T) {
	parent := &Account{ID: 1, Number: "1", Name: "Assets", Type: AccountTypeAsset}
	inactiveParent := &Account{ID: 1, Number: "1", Name: "Assets", Type: AccountTypeAsset, Inactive: true}

	cases := []struct {
		name  string
		c     Candidate
		codes []shared.Code
	}{
		{
			name: "valid child",
			c:    Candidate{Account: asset("1.1", "Cash"), Parent: parent},
		},
		{
			name:  "prefix mismatch",
			c:     Candidate{Account: asset("2.1", "Cash"), Parent: parent},
			codes: []shared.Code{shared.CodeNumberPrefixMismatch},
		},
		{
			name:  "prefix without dot",
			c:     Candidate{Account: asset("11", "Cash"), Parent: parent},
			codes: []shared.Code{shared.CodeNumberPrefixMismatch},
		},
		{
			name:  "type mismatch",
			c:     Candidate{Account: Account{Number: "1.1", Name: "Loan", Type: AccountTypeLiability}, Parent: parent},
			codes: []shared.Code{shared.CodeTypeMismatch},
		},
		{
			name:  "create active under inactive parent",
			c:     Candidate{Account: asset("1.1", "Cash"), Parent: inactiveParent},
			codes: []shared.Code{shared.CodeParentInactive, shared.CodeCannotReactivateUnderInactiveParent},
		},
		{
			name: "create inactive under inactive parent",
			c: Candidate{Account: Account{Number: "1.1", Name: "Cash", Type: AccountTypeAsset, Inactive: true},
				Parent: inactiveParent},
			codes: []shared.Code{shared.CodeParentInactive},
		},
		{
			name: "edit inactive child of inactive parent",
			c: Candidate{
				Account:  Account{ID: 2, Number: "1.1", Name: "Petty cash", Type: AccountTypeAsset, Inactive: true},
				Previous: &Account{ID: 2, Number: "1.1", Name: "Cash", Type: AccountTypeAsset, Inactive: true},
				Parent:   inactiveParent,
			},
		},
		{
			name: "reactivate under inactive parent",
			c: Candidate{
				Account:  Account{ID: 2, Number: "1.1", Name: "Cash", Type: AccountTypeAsset},
				Previous: &Account{ID: 2, Number: "1.1", Name: "Cash", Type: AccountTypeAsset, Inactive: true},
				Parent:   inactiveParent,
			},
			codes: []shared.Code{shared.CodeCannotReactivateUnderInactiveParent},
		},
		{
			name:  "number taken",
			c:     Candidate{Account: asset("1.1", "Cash"), Parent: parent, NumberTaken: true},
			codes: []shared.Code{shared.CodeNumberNotUnique},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := Validate(tc.c)
			if len(tc.codes) == 0 {
				require.NoError(t, errs.Err())
				return
			}
			assert.ElementsMatch(t, tc.codes, errs.Codes())
		})
	}
}

func TestInactivatedOnlyForwardTransition(t *testing.T) {
	active := &Account{Inactive: false}
	inactive := &Account{Inactive: true}

	assert.True(t, inactivated(active, Account{Inactive: true}))
	assert.False(t, inactivated(inactive, Account{Inactive: true}))
	assert.False(t, inactivated(inactive, Account{Inactive: false}))
	assert.False(t, inactivated(nil, Account{Inactive: true}))
}

func TestVerifyTreeFindsViolations(t *testing.T) {
	one := int64(1)
	missing := int64(99)
	all := []Account{
		{ID: 1, Number: "1", Name: "Assets", Type: AccountTypeAsset, Inactive: true},
		{ID: 2, Number: "1.1", Name: "Cash", Type: AccountTypeAsset, ParentID: &one, Inactive: true},
		{ID: 3, Number: "2.1", Name: "Bank", Type: AccountTypeLiability, ParentID: &one},
		{ID: 4, Number: "3.1", Name: "Orphan", Type: AccountTypeEquity, ParentID: &missing},
	}

	violations := verifyTree(all)

	kinds := map[ViolationKind][]string{}
	for _, v := range violations {
		kinds[v.Kind] = append(kinds[v.Kind], v.Number)
	}
	assert.Equal(t, []string{"2.1"}, kinds[ViolationNumberPrefix])
	assert.Equal(t, []string{"2.1"}, kinds[ViolationTypeMismatch])
	assert.Equal(t, []string{"2.1"}, kinds[ViolationActiveUnderInactive])
	assert.Equal(t, []string{"3.1"}, kinds[ViolationParentMissing])
}

func TestAccountString(t *testing.T) {
	assert.Equal(t, "1.1 - Cash", asset("1.1", "Cash").String())
	assert.Equal(t, 1, asset("1.1", "Cash").Depth())
}

func TestParseAccountType(t *testing.T) {
	got, err := ParseAccountType(" revenue ")
	require.NoError(t, err)
	assert.Equal(t, AccountTypeRevenue, got)
	assert.True(t, AccountTypeExpense.DebitNormal())
	assert.False(t, AccountTypeLiability.DebitNormal())

	_, err = ParseAccountType("income")
	assert.Error(t, err)
}
