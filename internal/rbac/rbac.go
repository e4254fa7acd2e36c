// Package rbac maps a user's relation to a swap onto what they may do with it.
package rbac

import (
	"github.com/google/uuid"
	"github.com/swap-market/backend/internal/models"
)

// Role constants
const (
	RoleSender    = "sender"
	RoleRecipient = "recipient"
	RoleNone      = ""
)

// Permission constants
const (
	PermViewSwap   = "view_swap"
	PermViewEvents = "view_events"
	PermAcceptSwap = "accept_swap"
	PermRejectSwap = "reject_swap"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleSender: {
		PermViewSwap, PermViewEvents,
		// отправитель не может отвечать на своё предложение
	},
	RoleRecipient: {
		PermViewSwap, PermViewEvents, PermAcceptSwap, PermRejectSwap,
	},
}

// SwapRole returns the role userID holds on swap, or RoleNone.
func SwapRole(swap *models.Swap, userID uuid.UUID) string {
	switch userID {
	case swap.ToUserID:
		return RoleRecipient
	case swap.FromUserID:
		return RoleSender
	}
	return RoleNone
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	for _, p := range RolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// Can reports whether userID may perform permission on swap.
func Can(swap *models.Swap, userID uuid.UUID, permission string) bool {
	return HasPermission(SwapRole(swap, userID), permission)
}
