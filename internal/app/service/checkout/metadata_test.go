package checkout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dogparkjp/paygate/internal/app/service/pricing"
	"github.com/dogparkjp/paygate/pkg/types"
)

func TestBuildMetadataOneTimePayment(t *testing.T) {
	req := &Request{Notes: "置き配希望"}
	priced := &pricing.Result{
		PointsUse: 300,
		Items: []types.LineItem{
			{ProductID: "p1", Name: "ドッグフード", UnitAmount: 1200, Quantity: 2},
			{Name: "送料", UnitAmount: 690, Quantity: 1},
		},
	}

	md := buildMetadata(req, priced)
	require.Equal(t, "300", md["points_use"])
	require.Equal(t, "置き配希望", md["notes"])

	var snaps []itemSnapshot
	require.NoError(t, json.Unmarshal([]byte(md["items"]), &snaps))
	require.Len(t, snaps, 2)
	require.Equal(t, "p1", snaps[0].ProductID)
	require.Equal(t, int64(1200), snaps[0].UnitPrice)
}

func TestBuildMetadataSubscription(t *testing.T) {
	req := &Request{
		Subscription: &SubscriptionTerms{
			Name:           "プレミアム会員",
			UnitPrice:      980,
			IntervalMonths: 12,
			ProductID:      "prod_1",
			OptionID:       "opt_1",
		},
	}

	md := buildMetadata(req, nil)
	require.Equal(t, "prod_1", md["sub_product_id"])
	require.Equal(t, "opt_1", md["sub_option_id"])
	require.Equal(t, "12", md["sub_interval"])
	require.Equal(t, "980", md["sub_unit_price"])
	require.NotContains(t, md, "points_use")
	require.NotContains(t, md, "items")
}

func TestBuildMetadataIsAllowListOnly(t *testing.T) {
	// Nothing outside the fixed key set may ever appear, whatever the request
	// carries.
	req := &Request{
		Mode:       types.CheckoutModePayment,
		SuccessURL: "https://x/s",
		CancelURL:  "https://x/c",
		Notes:      "n",
	}
	md := buildMetadata(req, &pricing.Result{PointsUse: 1, Items: []types.LineItem{{Name: "a", UnitAmount: 100, Quantity: 1}}})
	allowed := map[string]bool{
		"points_use": true, "notes": true, "items": true,
		"sub_product_id": true, "sub_option_id": true, "sub_interval": true, "sub_unit_price": true,
	}
	for k := range md {
		require.True(t, allowed[k], "unexpected metadata key %q", k)
	}
}
