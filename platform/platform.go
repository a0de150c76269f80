package platform

import (
	"context"

	"github.com/tokengate/tokengate/verification/domain"
)

// AssetSource is the external asset-ownership query. The engine calls it
// exactly once per verification attempt and once per reconciled user.
type AssetSource interface {
	GetAssets(ctx context.Context, address string) ([]domain.Asset, error)
}

// RoleMutator is the chat platform's role API. Calls are externally
// rate-limited; callers must tolerate and isolate per-call failure.
type RoleMutator interface {
	GrantRole(ctx context.Context, userID, roleID, serverID string) error
	RevokeRole(ctx context.Context, userID, roleID, serverID string) error
}
