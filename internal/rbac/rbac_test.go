package rbac

import (
	"testing"

	"github.com/keeper-escrow/backend/internal/models"
)

func TestCan(t *testing.T) {
	order := &models.DepositOrder{Depositor: "D", Keeper: "K"}

	tests := []struct {
		identity   string
		permission string
		expected   bool
	}{
		{"K", PermMarkReady, true},
		{"K", PermExecute, true},
		{"K", PermCancel, true},
		{"D", PermCancel, true},
		{"D", PermMarkReady, false},
		{"D", PermExecute, false},
		{"X", PermCancel, false},
		{"X", PermView, false},
		{"", PermView, false},
	}

	for _, tt := range tests {
		t.Run(tt.identity+":"+tt.permission, func(t *testing.T) {
			if got := Can(order, tt.identity, tt.permission); got != tt.expected {
				t.Errorf("Can(%q, %q) = %v, want %v", tt.identity, tt.permission, got, tt.expected)
			}
		})
	}
}

func TestSelfKeepingDepositorHoldsBothRoles(t *testing.T) {
	order := &models.DepositOrder{Depositor: "D", Keeper: "D"}
	roles := RolesOf(order, "D")
	if len(roles) != 2 {
		t.Fatalf("RolesOf() = %v, want both roles", roles)
	}
	if !Can(order, "D", PermExecute) {
		t.Error("self-keeping depositor should be able to execute")
	}
}
