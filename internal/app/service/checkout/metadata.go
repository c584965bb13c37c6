package checkout

import (
	"encoding/json"
	"strconv"

	"github.com/dogparkjp/paygate/internal/app/service/pricing"
	"github.com/dogparkjp/paygate/pkg/types"
)

// Session metadata is built from this explicit allow-list only. The gateway
// accepts string values exclusively, and arbitrary caller fields must never
// be spread into it.
const (
	metaKeyPointsUse    = "points_use"
	metaKeyNotes        = "notes"
	metaKeyItems        = "items"
	metaKeySubProductID = "sub_product_id"
	metaKeySubOptionID  = "sub_option_id"
	metaKeySubInterval  = "sub_interval"
	metaKeySubUnitPrice = "sub_unit_price"
)

// itemSnapshot is the authoritative record of what was purchased, embedded in
// session metadata. Gateway line items alone lose the product id needed to
// materialize order items downstream.
type itemSnapshot struct {
	ProductID string `json:"product_id,omitempty"`
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func buildMetadata(req *Request, priced *pricing.Result) map[string]string {
	md := map[string]string{
		metaKeyNotes: req.Notes,
	}
	if priced != nil {
		if priced.PointsUse > 0 {
			md[metaKeyPointsUse] = strconv.FormatInt(priced.PointsUse, 10)
		}
		if snap := snapshotItems(priced.Items); snap != "" {
			md[metaKeyItems] = snap
		}
	}
	if req.Subscription != nil {
		md[metaKeySubProductID] = req.Subscription.ProductID
		md[metaKeySubOptionID] = req.Subscription.OptionID
		if req.Subscription.IntervalMonths > 0 {
			md[metaKeySubInterval] = strconv.FormatInt(req.Subscription.IntervalMonths, 10)
		}
		if req.Subscription.UnitPrice > 0 {
			md[metaKeySubUnitPrice] = strconv.FormatInt(req.Subscription.UnitPrice, 10)
		}
	}
	return md
}

func snapshotItems(items []types.LineItem) string {
	if len(items) == 0 {
		return ""
	}
	snaps := make([]itemSnapshot, 0, len(items))
	for _, li := range items {
		snaps = append(snaps, itemSnapshot{
			ProductID: li.ProductID,
			Name:      li.Name,
			ImageURL:  li.ImageURL,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitAmount,
		})
	}
	b, err := json.Marshal(snaps)
	if err != nil {
		return ""
	}
	return string(b)
}
